package domain

import (
	"context"
	"time"
)

type EntityType string

const (
	EntityPool         EntityType = "pool"
	EntityContribution EntityType = "contribution"
	EntityTransaction  EntityType = "transaction"
)

// SettlementEvent tells live-update consumers that an entity changed status.
type SettlementEvent struct {
	EntityType EntityType
	EntityID   string
	PoolID     string
	NewStatus  string
	OccurredAt time.Time
}

// EventPublisher is best-effort: a failed publish never fails a transition.
type EventPublisher interface {
	PublishSettlementEvent(ctx context.Context, event SettlementEvent) error
}
