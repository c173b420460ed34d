package models

import (
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

type PoolModel struct {
	ID            string            `gorm:"primaryKey;type:uuid"`
	TournamentID  string            `gorm:"uniqueIndex:idx_money_pools_tournament;not null"`
	TotalAmount   decimal.Decimal   `gorm:"type:numeric(24,4);not null"`
	Currency      string            `gorm:"type:varchar(3);not null"`
	Status        domain.PoolStatus `gorm:"type:varchar(16);not null;index:idx_money_pools_status"`
	WinnerUserID  *string
	Distributed   bool    `gorm:"not null"`
	PayoutTxID    *string `gorm:"type:uuid"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
	DistributedAt *time.Time
}

func (PoolModel) TableName() string {
	return "money_pools"
}
