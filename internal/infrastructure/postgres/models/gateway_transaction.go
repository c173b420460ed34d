package models

import (
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type GatewayTransactionModel struct {
	ID             string                   `gorm:"primaryKey;type:uuid"`
	ExternalID     *string                  `gorm:"uniqueIndex:idx_gateway_transactions_external"`
	PoolID         string                   `gorm:"type:uuid;not null;index:idx_gateway_transactions_pool"`
	UserID         string                   `gorm:"not null;index:idx_gateway_transactions_user"`
	Amount         decimal.Decimal          `gorm:"type:numeric(24,4);not null"`
	Currency       string                   `gorm:"type:varchar(3);not null"`
	Type           domain.TransactionType   `gorm:"type:varchar(16);not null;index:idx_gateway_transactions_stale"`
	Status         domain.TransactionStatus `gorm:"type:varchar(16);not null;index:idx_gateway_transactions_stale"`
	IdempotencyKey string                   `gorm:"not null;uniqueIndex:idx_gateway_transactions_idempotency"`
	ApproveURL     string
	// Сырой ответ провайдера, хранится для аудита
	RawResponse datatypes.JSON
	CreatedAt   time.Time `gorm:"index:idx_gateway_transactions_stale"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (GatewayTransactionModel) TableName() string {
	return "gateway_transactions"
}
