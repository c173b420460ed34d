package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementResult is the ledger state after a capture transition.
// Applied is false when the transition had already been made by someone else.
type SettlementResult struct {
	Transaction  *GatewayTransaction
	Contribution *Contribution
	Pool         *Pool
	Applied      bool
}

// LedgerRepository is the only mutable shared state of the settlement engine.
// Every mutating method is a single atomic transition guarded on the current
// status of the rows it touches.
type LedgerRepository interface {
	// CreatePool returns ErrAlreadyExists when the tournament already has a pool.
	CreatePool(ctx context.Context, pool *Pool) error
	GetPoolByID(ctx context.Context, poolID string) (*Pool, error)
	GetPoolByTournamentID(ctx context.Context, tournamentID string) (*Pool, error)
	ListPools(ctx context.Context, limit, offset int) ([]*Pool, error)
	// ClosePool moves COLLECTING to CLOSED. The loser of a race gets ErrAlreadyClosed.
	ClosePool(ctx context.Context, poolID string, winnerUserID *string, closedAt time.Time) (*Pool, error)

	// CreateContribution stores a capture transaction and its PENDING contribution together.
	CreateContribution(ctx context.Context, tx *GatewayTransaction, contribution *Contribution) error
	GetContributionByID(ctx context.Context, contributionID string) (*Contribution, error)
	GetContributionByTransactionID(ctx context.Context, txID string) (*Contribution, error)
	ListContributionsByPool(ctx context.Context, poolID string) ([]*Contribution, error)
	SumCompletedContributions(ctx context.Context, poolID string) (decimal.Decimal, error)

	GetTransactionByID(ctx context.Context, txID string) (*GatewayTransaction, error)
	GetTransactionByExternalID(ctx context.Context, externalID string) (*GatewayTransaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*GatewayTransaction, error)
	FindStaleTransactions(ctx context.Context, txType TransactionType, statuses []TransactionStatus, olderThan time.Time, limit int) ([]*GatewayTransaction, error)

	// MarkCapturePending moves a capture transaction from CREATED to PENDING.
	MarkCapturePending(ctx context.Context, txID string, raw []byte, at time.Time) error
	// CompleteContribution completes the capture transaction and its contribution
	// and credits the pool total, all or nothing.
	CompleteContribution(ctx context.Context, txID string, raw []byte, completedAt time.Time) (*SettlementResult, error)
	// FailContribution moves the capture transaction to status (FAILED or
	// CANCELLED) and the contribution to FAILED. The pool total is untouched.
	FailContribution(ctx context.Context, txID string, status TransactionStatus, reason string, raw []byte, at time.Time) (*SettlementResult, error)

	// ReservePayout claims the pool's payout slot for payout and stores it.
	// replaceTxID names a failed reservation the new one may take over.
	ReservePayout(ctx context.Context, payout *GatewayTransaction, replaceTxID string) error
	// RecordPayoutSubmission stores the provider id of a PROCESSING payout.
	RecordPayoutSubmission(ctx context.Context, txID, externalID string, status TransactionStatus, raw []byte, at time.Time) (*GatewayTransaction, error)
	// UpdatePayoutStatus records a terminal status for a PROCESSING payout.
	UpdatePayoutStatus(ctx context.Context, txID string, status TransactionStatus, raw []byte, at time.Time) (*GatewayTransaction, bool, error)
	// MarkPoolDistributed sets the distributed flag, guarded on the reservation.
	MarkPoolDistributed(ctx context.Context, poolID, payoutTxID, winnerUserID string, at time.Time) (*Pool, error)
	// FindUndistributedPayouts lists pools holding a payout reservation without the distributed flag.
	FindUndistributedPayouts(ctx context.Context, limit int) ([]*Pool, error)
}
