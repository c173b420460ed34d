package grpcapi

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	down atomic.Bool
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestHealthFollowsDatabase(t *testing.T) {
	db := &fakePinger{}
	h := NewHealthHandler(db)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Check(ctx))
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: SettlementServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	db.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Check(ctx))
	resp, err = h.server.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
