package models

import (
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

type ContributionModel struct {
	ID            string                    `gorm:"primaryKey;type:uuid"`
	PoolID        string                    `gorm:"type:uuid;not null;index:idx_contributions_pool_status"`
	UserID        string                    `gorm:"not null;index:idx_contributions_user"`
	Amount        decimal.Decimal           `gorm:"type:numeric(24,4);not null"`
	Currency      string                    `gorm:"type:varchar(3);not null"`
	Status        domain.ContributionStatus `gorm:"type:varchar(16);not null;index:idx_contributions_pool_status"`
	TransactionID string                    `gorm:"type:uuid;not null;uniqueIndex:idx_contributions_transaction"`
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func (ContributionModel) TableName() string {
	return "contributions"
}
