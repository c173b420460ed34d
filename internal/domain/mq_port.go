package domain

import "context"

type Message struct {
	Key   []byte
	Value []byte
	// Commit acknowledges a consumed message. Nil for outgoing messages and
	// for sources without offsets.
	Commit func(ctx context.Context) error
}

type PublisherPort interface {
	Publish(ctx context.Context, topic string, msgs ...Message) error
}

type SubscriberPort interface {
	Subscribe(ctx context.Context, topic, groupID string) (<-chan Message, error)
}
