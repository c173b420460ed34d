package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingUsecase struct {
	settlement.SettlementUsecase
	runs    atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
}

func (u *countingUsecase) Reconcile(ctx context.Context) (*settlementdto.ReconcileReport, error) {
	if u.running.Add(1) > 1 {
		u.overlap.Store(true)
	}
	defer u.running.Add(-1)
	u.runs.Add(1)
	time.Sleep(30 * time.Millisecond)
	return &settlementdto.ReconcileReport{}, nil
}

func TestReconcileJobRunsUntilCancelled(t *testing.T) {
	uc := &countingUsecase{}
	ctx, cancel := context.WithCancel(context.Background())

	tasks := NewBackgroundTasks(uc, 10*time.Millisecond)
	require.NoError(t, tasks.StartAll(ctx))

	assert.Eventually(t, func() bool { return uc.runs.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, uc.overlap.Load())

	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Eventually(t, func() bool { return uc.running.Load() == 0 }, time.Second, 10*time.Millisecond)
	stopped := uc.runs.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, stopped, uc.runs.Load())
}
