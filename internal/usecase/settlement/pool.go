package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (uc *DefaultSettlementUsecase) CreatePool(ctx context.Context, input *settlementdto.CreatePoolInput) (*domain.Pool, error) {
	tournamentID := strings.TrimSpace(input.TournamentID)
	if tournamentID == "" {
		return nil, uc.fail("create_pool", fmt.Errorf("%w: tournament id is required", domain.ErrValidation))
	}
	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, uc.fail("create_pool", err)
	}

	if uc.tournaments != nil {
		if _, err := uc.tournaments.GetTournament(ctx, tournamentID); err != nil {
			return nil, uc.fail("create_pool", err)
		}
	}

	pool := &domain.Pool{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		TotalAmount:  decimal.Zero,
		Currency:     currency,
		Status:       domain.PoolStatusCollecting,
		CreatedAt:    uc.now(),
	}
	if err := uc.ledger.CreatePool(ctx, pool); err != nil {
		return nil, uc.fail("create_pool", err)
	}

	uc.metrics.RecordPoolCreated(currency)
	uc.publish(ctx, domain.EntityPool, pool.ID, pool.ID, string(pool.Status))
	uc.logger.Info("pool created", "pool_id", pool.ID, "tournament_id", tournamentID, "currency", currency)
	return pool, nil
}

// ClosePool stops a pool from accepting contributions. Only the first caller
// wins; everyone else gets ErrAlreadyClosed.
func (uc *DefaultSettlementUsecase) ClosePool(ctx context.Context, poolID string, winnerUserID *string) (*domain.Pool, error) {
	pool, err := uc.closePool(ctx, poolID, winnerUserID, false)
	if err != nil {
		return nil, uc.fail("close_pool", err)
	}
	return pool, nil
}

func (uc *DefaultSettlementUsecase) closePool(ctx context.Context, poolID string, winnerUserID *string, auto bool) (*domain.Pool, error) {
	if strings.TrimSpace(poolID) == "" {
		return nil, fmt.Errorf("%w: pool id is required", domain.ErrValidation)
	}
	if winnerUserID != nil && strings.TrimSpace(*winnerUserID) == "" {
		winnerUserID = nil
	}

	pool, err := uc.ledger.ClosePool(ctx, poolID, winnerUserID, uc.now())
	if err != nil {
		return nil, err
	}

	uc.metrics.RecordPoolClosed(pool.Currency, auto)
	uc.publish(ctx, domain.EntityPool, pool.ID, pool.ID, string(pool.Status))
	uc.logger.Info("pool closed", "pool_id", pool.ID, "total", pool.TotalAmount.String(), "auto", auto)
	return pool, nil
}
