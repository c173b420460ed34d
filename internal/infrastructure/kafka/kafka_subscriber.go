package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

type DefaultKafkaSubscriber struct {
	brokers []string
}

func NewDefaultKafkaSubscriber(brokers []string) *DefaultKafkaSubscriber {
	return &DefaultKafkaSubscriber{brokers: brokers}
}

// Subscribe streams messages of topic until ctx is cancelled or the reader fails.
// A message's offset is committed only when the consumer calls its Commit, so
// a crash before that redelivers it to the group.
func (k *DefaultKafkaSubscriber) Subscribe(ctx context.Context, topic, groupID string) (<-chan domain.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	out := make(chan domain.Message)
	go func() {
		defer close(out)
		defer reader.Close()
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("kafka reader stopped", "topic", topic, "error", err.Error())
				}
				return
			}
			select {
			case out <- domain.Message{Key: m.Key, Value: m.Value, Commit: commitFunc(reader, m)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func commitFunc(reader *kafka.Reader, m kafka.Message) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return reader.CommitMessages(ctx, m)
	}
}
