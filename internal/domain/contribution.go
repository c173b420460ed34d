package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "PENDING"
	ContributionCompleted ContributionStatus = "COMPLETED"
	ContributionFailed    ContributionStatus = "FAILED"
	ContributionRefunded  ContributionStatus = "REFUNDED"
)

func (s ContributionStatus) IsTerminal() bool {
	return s != ContributionPending
}

// Contribution is one user's payment toward a pool.
type Contribution struct {
	ID            string
	PoolID        string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Status        ContributionStatus
	TransactionID string
	FailureReason string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	v := *c
	v.CompletedAt = cloneTime(c.CompletedAt)
	return &v
}
