package setup

import (
	"fmt"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
)

type UseCases struct {
	SettlementUsecase settlement.SettlementUsecase
}

func InitializeUseCases(deps *Dependencies) (*UseCases, error) {
	var (
		tournaments domain.TournamentDirectory
		users       domain.UserDirectory
	)
	if deps.Platform != nil {
		tournaments = deps.Platform
		users = deps.Platform
	}

	cfg := deps.Config
	settlementUsecase, err := settlement.NewDefaultSettlementUsecase(
		deps.Ledger,
		deps.Gateway,
		tournaments,
		users,
		deps.Events,
		deps.Archiver,
		deps.Metrics,
		settlement.Options{
			AllowAutoClose:   cfg.Settlement.AllowAutoClose,
			PendingThreshold: cfg.Reconcile.PendingThreshold,
			OrderExpiry:      cfg.Reconcile.OrderExpiry,
			BatchSize:        cfg.Reconcile.BatchSize,
			AuditInvariant:   cfg.Reconcile.AuditInvariant,
			Logger:           deps.Logger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("settlement usecase: %w", err)
	}

	return &UseCases{SettlementUsecase: settlementUsecase}, nil
}
