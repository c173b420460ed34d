package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (uc *DefaultSettlementUsecase) GetPool(ctx context.Context, poolID string) (*domain.Pool, error) {
	return uc.ledger.GetPoolByID(ctx, poolID)
}

func (uc *DefaultSettlementUsecase) GetPoolByTournament(ctx context.Context, tournamentID string) (*domain.Pool, error) {
	return uc.ledger.GetPoolByTournamentID(ctx, tournamentID)
}

func (uc *DefaultSettlementUsecase) ListPools(ctx context.Context, input *settlementdto.ListPoolsInput) (*settlementdto.ListPoolsOutput, error) {
	page := normalizePage(input.Page, input.Limit)
	pools, err := uc.ledger.ListPools(ctx, page.Limit, (page.Page-1)*page.Limit)
	if err != nil {
		return nil, err
	}
	return &settlementdto.ListPoolsOutput{Pools: pools, Pagination: page}, nil
}

func (uc *DefaultSettlementUsecase) ListPoolContributions(ctx context.Context, poolID string) ([]*domain.Contribution, error) {
	if _, err := uc.ledger.GetPoolByID(ctx, poolID); err != nil {
		return nil, err
	}
	return uc.ledger.ListContributionsByPool(ctx, poolID)
}

func (uc *DefaultSettlementUsecase) GetContribution(ctx context.Context, contributionID string) (*domain.Contribution, error) {
	return uc.ledger.GetContributionByID(ctx, contributionID)
}

func (uc *DefaultSettlementUsecase) ListUserTransactions(ctx context.Context, input *settlementdto.ListUserTransactionsInput) (*settlementdto.ListUserTransactionsOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	page := normalizePage(input.Page, input.Limit)
	txs, err := uc.ledger.ListTransactionsByUser(ctx, input.UserID, page.Limit, (page.Page-1)*page.Limit)
	if err != nil {
		return nil, err
	}
	return &settlementdto.ListUserTransactionsOutput{Transactions: txs, Pagination: page}, nil
}

func normalizePage(page, limit int) settlementdto.Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return settlementdto.Pagination{Page: page, Limit: limit}
}
