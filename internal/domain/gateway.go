package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	IdempotencyKey string
	Reference      string
	Amount         decimal.Decimal
	Currency       string
	Description    string
}

type PayoutRequest struct {
	IdempotencyKey string
	Reference      string
	Amount         decimal.Decimal
	Currency       string
	Receiver       PayoutAccount
	Note           string
}

// GatewayResult is a provider response normalised to internal statuses.
type GatewayResult struct {
	ExternalID string
	Status     TransactionStatus
	ApproveURL string
	Raw        []byte
}

// PaymentGateway adapts the external payment provider. Implementations never
// touch the ledger and fail with ErrGatewayRejected, ErrGatewayUnavailable or
// ErrGatewayTimeout.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayResult, error)
	CaptureOrder(ctx context.Context, externalID, idempotencyKey string) (*GatewayResult, error)
	GetOrder(ctx context.Context, externalID string) (*GatewayResult, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*GatewayResult, error)
	GetPayoutStatus(ctx context.Context, externalID string) (*GatewayResult, error)
}

// GatewayNotification is a verified asynchronous provider event.
type GatewayNotification struct {
	EventID    string
	EventType  string
	Type       TransactionType
	ExternalID string
	Status     TransactionStatus
	Raw        []byte
}

type NotificationOutcome string

const (
	NotificationApplied   NotificationOutcome = "applied"
	NotificationDuplicate NotificationOutcome = "duplicate"
	NotificationIgnored   NotificationOutcome = "ignored"
	// не прошло подпись или разбор, в движок не попало
	NotificationRejected NotificationOutcome = "rejected"
)
