package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/jaevor/go-nanoid"
)

type SettlementUsecase interface {
	CreatePool(ctx context.Context, input *settlementdto.CreatePoolInput) (*domain.Pool, error)
	InitiateContribution(ctx context.Context, input *settlementdto.InitiateContributionInput) (*settlementdto.InitiateContributionOutput, error)
	ConfirmContribution(ctx context.Context, orderHandle string) (*domain.SettlementResult, error)
	ClosePool(ctx context.Context, poolID string, winnerUserID *string) (*domain.Pool, error)
	DistributePrize(ctx context.Context, poolID, winnerUserID string) (*settlementdto.DistributePrizeOutput, error)
	CheckPayoutStatus(ctx context.Context, payoutHandle string) (*domain.GatewayTransaction, error)
	HandleGatewayNotification(ctx context.Context, notification *domain.GatewayNotification) (domain.NotificationOutcome, error)
	Reconcile(ctx context.Context) (*settlementdto.ReconcileReport, error)

	GetPool(ctx context.Context, poolID string) (*domain.Pool, error)
	GetPoolByTournament(ctx context.Context, tournamentID string) (*domain.Pool, error)
	ListPools(ctx context.Context, input *settlementdto.ListPoolsInput) (*settlementdto.ListPoolsOutput, error)
	ListPoolContributions(ctx context.Context, poolID string) ([]*domain.Contribution, error)
	GetContribution(ctx context.Context, contributionID string) (*domain.Contribution, error)
	ListUserTransactions(ctx context.Context, input *settlementdto.ListUserTransactionsInput) (*settlementdto.ListUserTransactionsOutput, error)
}

type Options struct {
	// AllowAutoClose lets DistributePrize close a pool that is still collecting.
	AllowAutoClose bool
	// PendingThreshold is how old an unsettled transaction must be before
	// reconciliation asks the gateway about it.
	PendingThreshold time.Duration
	// OrderExpiry cancels orders the payer never approved.
	OrderExpiry    time.Duration
	BatchSize      int
	AuditInvariant bool
	Logger         *slog.Logger
}

type DefaultSettlementUsecase struct {
	ledger      domain.LedgerRepository
	gateway     domain.PaymentGateway
	tournaments domain.TournamentDirectory
	users       domain.UserDirectory
	events      domain.EventPublisher
	archiver    domain.AuditArchiver
	metrics     *metrics.SettlementMetrics
	opts        Options
	logger      *slog.Logger

	orderKey func() string
	now      func() time.Time
}

// NewDefaultSettlementUsecase wires the engine. tournaments, users, events and
// archiver are optional and may be nil.
func NewDefaultSettlementUsecase(
	ledger domain.LedgerRepository,
	gateway domain.PaymentGateway,
	tournaments domain.TournamentDirectory,
	users domain.UserDirectory,
	events domain.EventPublisher,
	archiver domain.AuditArchiver,
	settlementMetrics *metrics.SettlementMetrics,
	opts Options,
) (*DefaultSettlementUsecase, error) {
	orderKey, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to init idempotency key generator: %w", err)
	}
	if opts.PendingThreshold <= 0 {
		opts.PendingThreshold = 15 * time.Minute
	}
	if opts.OrderExpiry <= 0 {
		opts.OrderExpiry = 3 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DefaultSettlementUsecase{
		ledger:      ledger,
		gateway:     gateway,
		tournaments: tournaments,
		users:       users,
		events:      events,
		archiver:    archiver,
		metrics:     settlementMetrics,
		opts:        opts,
		logger:      logger.With("component", "settlement"),
		orderKey:    orderKey,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (uc *DefaultSettlementUsecase) callGateway(operation string, call func() (*domain.GatewayResult, error)) (*domain.GatewayResult, error) {
	start := time.Now()
	res, err := call()
	uc.metrics.RecordGatewayCall(operation, err, time.Since(start))
	if err != nil {
		uc.logger.Warn("gateway call failed", "operation", operation, "error", err.Error())
	}
	return res, err
}

// fail counts err under operation and hands it back.
func (uc *DefaultSettlementUsecase) fail(operation string, err error) error {
	uc.metrics.RecordError(operation, err)
	return err
}
