package kafka

import "time"

// SettlementEvent is the wire form of domain.SettlementEvent.
type SettlementEvent struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	PoolID     string    `json:"pool_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
