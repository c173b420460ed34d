package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

// ConfirmContribution captures an approved order and credits the pool.
// Confirming an already settled order returns its stored result unchanged.
func (uc *DefaultSettlementUsecase) ConfirmContribution(ctx context.Context, orderHandle string) (*domain.SettlementResult, error) {
	const op = "confirm_contribution"

	orderHandle = strings.TrimSpace(orderHandle)
	if orderHandle == "" {
		return nil, uc.fail(op, fmt.Errorf("%w: order handle is required", domain.ErrValidation))
	}
	tx, err := uc.ledger.GetTransactionByExternalID(ctx, orderHandle)
	if err != nil {
		return nil, uc.fail(op, err)
	}
	if tx.Type != domain.TransactionCapture {
		return nil, uc.fail(op, fmt.Errorf("%w: %s is not a contribution order", domain.ErrValidation, orderHandle))
	}

	result, err := uc.capture(ctx, tx)
	if err != nil {
		return nil, uc.fail(op, err)
	}
	return result, nil
}

func captureKey(tx *domain.GatewayTransaction) string {
	return tx.IdempotencyKey + "-capture"
}

// capture drives a non-terminal capture transaction through the gateway.
// A rejected capture fails the contribution; an unavailable gateway leaves it
// PENDING for reconciliation.
func (uc *DefaultSettlementUsecase) capture(ctx context.Context, tx *domain.GatewayTransaction) (*domain.SettlementResult, error) {
	if tx.Status.IsTerminal() {
		return uc.settledResult(ctx, tx.ID)
	}

	pool, err := uc.ledger.GetPoolByID(ctx, tx.PoolID)
	if err != nil {
		return nil, err
	}
	if !pool.IsCollecting() {
		return uc.captureOnClosedPool(ctx, tx, pool)
	}

	res, err := uc.callGateway("capture_order", func() (*domain.GatewayResult, error) {
		return uc.gateway.CaptureOrder(ctx, tx.ExternalID, captureKey(tx))
	})
	switch {
	case errors.Is(err, domain.ErrGatewayRejected):
		if _, ferr := uc.applyCaptureStatus(ctx, tx, domain.TxStatusFailed, nil, err.Error()); ferr != nil {
			return nil, ferr
		}
		return nil, err
	case errors.Is(err, domain.ErrGatewayUnavailable):
		if perr := uc.ledger.MarkCapturePending(ctx, tx.ID, nil, uc.now()); perr != nil {
			uc.logger.Error("failed to mark capture pending", "transaction_id", tx.ID, "error", perr.Error())
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	uc.archive(ctx, tx, "capture_order", res.Status, res.Raw)
	result, err := uc.applyCaptureStatus(ctx, tx, res.Status, res.Raw, "")
	if err != nil {
		return nil, err
	}
	if res.Status == domain.TxStatusFailed || res.Status == domain.TxStatusCancelled {
		return nil, fmt.Errorf("order %s ended %s: %w", tx.ExternalID, res.Status, domain.ErrGatewayRejected)
	}
	return result, nil
}

// captureOnClosedPool never captures, but an earlier capture whose answer was
// lost may have moved the money already. The provider decides: a completed
// order is credited, anything else is cancelled. An unreachable provider
// leaves the transaction for reconciliation.
func (uc *DefaultSettlementUsecase) captureOnClosedPool(ctx context.Context, tx *domain.GatewayTransaction, pool *domain.Pool) (*domain.SettlementResult, error) {
	status := domain.TxStatusCancelled
	var raw []byte
	res, err := uc.callGateway("get_order", func() (*domain.GatewayResult, error) {
		return uc.gateway.GetOrder(ctx, tx.ExternalID)
	})
	switch {
	case err == nil:
		raw = res.Raw
		if res.Status == domain.TxStatusCompleted || res.Status == domain.TxStatusFailed {
			status = res.Status
		}
	case !errors.Is(err, domain.ErrGatewayRejected):
		return nil, err
	}

	if status == domain.TxStatusCompleted {
		uc.archive(ctx, tx, "get_order", status, raw)
		uc.logger.Warn("order captured before pool closed", "transaction_id", tx.ID, "pool_id", pool.ID)
		return uc.applyCaptureStatus(ctx, tx, status, raw, "")
	}

	result, err := uc.applyCaptureStatus(ctx, tx, status, raw, "pool closed before capture")
	if err != nil {
		return nil, err
	}
	if !result.Applied && result.Transaction.Status == domain.TxStatusCompleted {
		return result, nil
	}
	return nil, fmt.Errorf("pool %s: %w", pool.ID, domain.ErrPoolClosed)
}

// applyCaptureStatus records a provider-reported status on a capture
// transaction. Statuses that settle nothing only refresh the stored state.
func (uc *DefaultSettlementUsecase) applyCaptureStatus(ctx context.Context, tx *domain.GatewayTransaction, status domain.TransactionStatus, raw []byte, reason string) (*domain.SettlementResult, error) {
	var (
		result *domain.SettlementResult
		err    error
	)
	switch status {
	case domain.TxStatusCompleted:
		result, err = uc.ledger.CompleteContribution(ctx, tx.ID, raw, uc.now())
	case domain.TxStatusFailed, domain.TxStatusCancelled:
		if reason == "" {
			reason = "gateway reported " + string(status)
		}
		result, err = uc.ledger.FailContribution(ctx, tx.ID, status, reason, raw, uc.now())
	case domain.TxStatusPending:
		if err := uc.ledger.MarkCapturePending(ctx, tx.ID, raw, uc.now()); err != nil {
			return nil, err
		}
		return uc.settledResult(ctx, tx.ID)
	default:
		return uc.settledResult(ctx, tx.ID)
	}
	if err != nil {
		return nil, err
	}

	if result.Applied {
		uc.logger.Info("contribution settled",
			"contribution_id", result.Contribution.ID,
			"status", string(result.Contribution.Status),
			"pool_id", result.Pool.ID,
			"pool_total", result.Pool.TotalAmount.String(),
		)
	}
	uc.publishCapture(ctx, result)
	return result, nil
}

func (uc *DefaultSettlementUsecase) settledResult(ctx context.Context, txID string) (*domain.SettlementResult, error) {
	tx, err := uc.ledger.GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	contribution, err := uc.ledger.GetContributionByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	pool, err := uc.ledger.GetPoolByID(ctx, tx.PoolID)
	if err != nil {
		return nil, err
	}
	return &domain.SettlementResult{
		Transaction:  tx,
		Contribution: contribution,
		Pool:         pool,
	}, nil
}
