package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PoolStatus string

const (
	PoolStatusCollecting PoolStatus = "COLLECTING"
	PoolStatusClosed     PoolStatus = "CLOSED"
)

// Pool is the prize money accumulated for a single tournament.
// TotalAmount always equals the sum of the pool's COMPLETED contributions.
type Pool struct {
	ID           string
	TournamentID string
	TotalAmount  decimal.Decimal
	Currency     string
	Status       PoolStatus
	WinnerUserID *string
	Distributed  bool
	// PayoutTxID is the payout reservation slot. At most one live payout
	// transaction can be referenced from here at any time.
	PayoutTxID    *string
	CreatedAt     time.Time
	ClosedAt      *time.Time
	DistributedAt *time.Time
}

func (p *Pool) IsCollecting() bool {
	return p.Status == PoolStatusCollecting
}

func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	c := *p
	c.WinnerUserID = cloneString(p.WinnerUserID)
	c.PayoutTxID = cloneString(p.PayoutTxID)
	c.ClosedAt = cloneTime(p.ClosedAt)
	c.DistributedAt = cloneTime(p.DistributedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
