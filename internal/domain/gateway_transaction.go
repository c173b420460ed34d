package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCapture TransactionType = "CAPTURE"
	TransactionPayout  TransactionType = "PAYOUT"
)

type TransactionStatus string

const (
	// capture lifecycle
	TxStatusCreated   TransactionStatus = "CREATED"
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusFailed    TransactionStatus = "FAILED"
	TxStatusCancelled TransactionStatus = "CANCELLED"

	// payout lifecycle
	TxStatusProcessing TransactionStatus = "PROCESSING"
	TxStatusSuccess    TransactionStatus = "SUCCESS"
	TxStatusDenied     TransactionStatus = "DENIED"
	TxStatusCanceled   TransactionStatus = "CANCELED"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxStatusCompleted, TxStatusFailed, TxStatusCancelled,
		TxStatusSuccess, TxStatusDenied, TxStatusCanceled:
		return true
	}
	return false
}

// IsPayoutFailure reports whether a payout ended without moving money,
// which frees the pool's payout slot for another attempt.
func (s TransactionStatus) IsPayoutFailure() bool {
	return s == TxStatusDenied || s == TxStatusFailed || s == TxStatusCanceled
}

// GatewayTransaction mirrors one provider-side order or payout.
type GatewayTransaction struct {
	ID             string
	ExternalID     string
	PoolID         string
	UserID         string
	Amount         decimal.Decimal
	Currency       string
	Type           TransactionType
	Status         TransactionStatus
	IdempotencyKey string
	ApproveURL     string
	RawResponse    []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (t *GatewayTransaction) Clone() *GatewayTransaction {
	if t == nil {
		return nil
	}
	v := *t
	v.CompletedAt = cloneTime(t.CompletedAt)
	if t.RawResponse != nil {
		v.RawResponse = append([]byte(nil), t.RawResponse...)
	}
	return &v
}
