package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/google/uuid"
)

// InitiateContribution opens a provider order for the contribution and records
// it as PENDING. Nothing is stored when the gateway refuses the order.
func (uc *DefaultSettlementUsecase) InitiateContribution(ctx context.Context, input *settlementdto.InitiateContributionInput) (*settlementdto.InitiateContributionOutput, error) {
	const op = "initiate_contribution"

	if strings.TrimSpace(input.PoolID) == "" || strings.TrimSpace(input.UserID) == "" {
		return nil, uc.fail(op, fmt.Errorf("%w: pool id and user id are required", domain.ErrValidation))
	}
	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, uc.fail(op, err)
	}
	if err := domain.ValidateAmount(input.Amount, currency); err != nil {
		return nil, uc.fail(op, err)
	}

	pool, err := uc.ledger.GetPoolByID(ctx, input.PoolID)
	if err != nil {
		return nil, uc.fail(op, err)
	}
	if !pool.IsCollecting() {
		return nil, uc.fail(op, fmt.Errorf("pool %s: %w", pool.ID, domain.ErrPoolClosed))
	}
	if pool.Currency != currency {
		return nil, uc.fail(op, fmt.Errorf("%w: pool %s collects %s, got %s", domain.ErrValidation, pool.ID, pool.Currency, currency))
	}

	txID := uuid.NewString()
	key := "ord-" + uc.orderKey()
	res, err := uc.callGateway("create_order", func() (*domain.GatewayResult, error) {
		return uc.gateway.CreateOrder(ctx, domain.OrderRequest{
			IdempotencyKey: key,
			Reference:      txID,
			Amount:         input.Amount,
			Currency:       currency,
			Description:    fmt.Sprintf("Prize pool contribution for tournament %s", pool.TournamentID),
		})
	})
	if err != nil {
		return nil, uc.fail(op, err)
	}

	now := uc.now()
	tx := &domain.GatewayTransaction{
		ID:             txID,
		ExternalID:     res.ExternalID,
		PoolID:         pool.ID,
		UserID:         input.UserID,
		Amount:         input.Amount,
		Currency:       currency,
		Type:           domain.TransactionCapture,
		Status:         domain.TxStatusCreated,
		IdempotencyKey: key,
		ApproveURL:     res.ApproveURL,
		RawResponse:    res.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	contribution := &domain.Contribution{
		ID:            uuid.NewString(),
		PoolID:        pool.ID,
		UserID:        input.UserID,
		Amount:        input.Amount,
		Currency:      currency,
		Status:        domain.ContributionPending,
		TransactionID: txID,
		CreatedAt:     now,
	}
	if err := uc.ledger.CreateContribution(ctx, tx, contribution); err != nil {
		// заказ у провайдера останется неподтверждённым и истечёт сам
		uc.logger.Error("failed to store contribution", "order_id", res.ExternalID, "error", err.Error())
		return nil, uc.fail(op, err)
	}

	uc.archive(ctx, tx, "create_order", tx.Status, res.Raw)
	uc.metrics.RecordContribution(contribution.Status, currency, contribution.Amount)
	uc.publish(ctx, domain.EntityContribution, contribution.ID, pool.ID, string(contribution.Status))

	return &settlementdto.InitiateContributionOutput{
		Contribution: contribution,
		Transaction:  tx,
		OrderHandle:  tx.ExternalID,
		ApproveURL:   tx.ApproveURL,
	}, nil
}
