package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DefaultKafkaPublisher struct {
	writer messageWriter
}

func NewDefaultKafkaPublisher(brokers []string) *DefaultKafkaPublisher {
	return &DefaultKafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *DefaultKafkaPublisher) Publish(ctx context.Context, topic string, msgs ...domain.Message) error {
	km := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km = append(km, kafka.Message{
			Key:   m.Key,
			Value: m.Value,
			Time:  time.Now(),
			Topic: topic,
		})
	}

	return k.writer.WriteMessages(ctx, km...)
}

func (k *DefaultKafkaPublisher) Close() error {
	return k.writer.Close()
}

// SettlementEventPublisher sends pool and contribution status changes to the
// live-update topic, keyed by pool so one pool's events stay ordered.
type SettlementEventPublisher struct {
	publisher domain.PublisherPort
	topic     string
}

func NewSettlementEventPublisher(publisher domain.PublisherPort, topic string) *SettlementEventPublisher {
	return &SettlementEventPublisher{publisher: publisher, topic: topic}
}

func (p *SettlementEventPublisher) PublishSettlementEvent(ctx context.Context, event domain.SettlementEvent) error {
	v, err := json.Marshal(SettlementEvent{
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		PoolID:     event.PoolID,
		Status:     event.NewStatus,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return err
	}

	return p.publisher.Publish(ctx, p.topic, domain.Message{Key: []byte(event.PoolID), Value: v})
}
