package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestSettlementEventPublisher(t *testing.T) {
	w := &recordingWriter{}
	pub := NewSettlementEventPublisher(&DefaultKafkaPublisher{writer: w}, "settlement-events")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := pub.PublishSettlementEvent(context.Background(), domain.SettlementEvent{
		EntityType: domain.EntityContribution,
		EntityID:   "contribution-1",
		PoolID:     "pool-1",
		NewStatus:  "COMPLETED",
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "settlement-events", msg.Topic)
	assert.Equal(t, []byte("pool-1"), msg.Key)

	var event SettlementEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "contribution", event.EntityType)
	assert.Equal(t, "contribution-1", event.EntityID)
	assert.Equal(t, "COMPLETED", event.Status)
	assert.True(t, at.Equal(event.OccurredAt))
}
