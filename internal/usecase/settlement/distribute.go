package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/google/uuid"
)

const defaultRecipientType = "PAYPAL_ID"

// DistributePrize pays the whole pool to the winner and flags it distributed.
// The pool's payout slot guarantees a single live payout: a concurrent caller
// gets ErrAlreadyDistributed, a retry after an ambiguous gateway answer
// resubmits the same payout, and a retry after a failed one replaces it.
func (uc *DefaultSettlementUsecase) DistributePrize(ctx context.Context, poolID, winnerUserID string) (*settlementdto.DistributePrizeOutput, error) {
	out, err := uc.distribute(ctx, strings.TrimSpace(poolID), strings.TrimSpace(winnerUserID))
	if err != nil {
		return nil, uc.fail("distribute_prize", err)
	}
	return out, nil
}

func (uc *DefaultSettlementUsecase) distribute(ctx context.Context, poolID, winnerUserID string) (*settlementdto.DistributePrizeOutput, error) {
	if poolID == "" || winnerUserID == "" {
		return nil, fmt.Errorf("%w: pool id and winner user id are required", domain.ErrValidation)
	}

	pool, err := uc.ledger.GetPoolByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Distributed {
		return nil, fmt.Errorf("pool %s: %w", pool.ID, domain.ErrAlreadyDistributed)
	}
	if pool.IsCollecting() {
		if !uc.opts.AllowAutoClose {
			return nil, fmt.Errorf("pool %s must be closed before distribution: %w", pool.ID, domain.ErrPoolOpen)
		}
		if _, err := uc.closePool(ctx, pool.ID, &winnerUserID, true); err != nil && !errors.Is(err, domain.ErrAlreadyClosed) {
			return nil, err
		}
		if pool, err = uc.ledger.GetPoolByID(ctx, poolID); err != nil {
			return nil, err
		}
		if pool.Distributed {
			return nil, fmt.Errorf("pool %s: %w", pool.ID, domain.ErrAlreadyDistributed)
		}
	}
	if pool.WinnerUserID != nil && *pool.WinnerUserID != winnerUserID {
		return nil, fmt.Errorf("%w: pool %s was closed with winner %s", domain.ErrValidation, pool.ID, *pool.WinnerUserID)
	}
	if !pool.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: pool %s has nothing to distribute", domain.ErrValidation, pool.ID)
	}

	account, err := uc.payoutAccount(ctx, winnerUserID)
	if err != nil {
		return nil, err
	}

	replaceTxID := ""
	attempt := 1
	if pool.PayoutTxID != nil {
		current, err := uc.ledger.GetTransactionByID(ctx, *pool.PayoutTxID)
		if err != nil {
			return nil, err
		}
		switch {
		case current.Status.IsPayoutFailure():
			replaceTxID = current.ID
			attempt = payoutAttempt(current.IdempotencyKey) + 1
		case current.UserID != winnerUserID:
			return nil, fmt.Errorf("pool %s is being paid to %s: %w", pool.ID, current.UserID, domain.ErrAlreadyDistributed)
		case current.ExternalID == "":
			// исход отправки неизвестен, провайдер дедуплицирует по тому же ключу
			return uc.submitPayout(ctx, pool, current, account)
		default:
			return uc.finishDistribution(ctx, pool, current)
		}
	}

	now := uc.now()
	payout := &domain.GatewayTransaction{
		ID:             uuid.NewString(),
		PoolID:         pool.ID,
		UserID:         winnerUserID,
		Amount:         pool.TotalAmount,
		Currency:       pool.Currency,
		Type:           domain.TransactionPayout,
		Status:         domain.TxStatusProcessing,
		IdempotencyKey: payoutKey(pool.ID, attempt),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.ledger.ReservePayout(ctx, payout, replaceTxID); err != nil {
		if errors.Is(err, domain.ErrLedgerConflict) {
			return nil, fmt.Errorf("pool %s: %w", pool.ID, domain.ErrAlreadyDistributed)
		}
		return nil, err
	}
	uc.logger.Info("payout reserved", "pool_id", pool.ID, "payout_id", payout.ID, "attempt", attempt)
	uc.publish(ctx, domain.EntityTransaction, payout.ID, pool.ID, string(payout.Status))

	return uc.submitPayout(ctx, pool, payout, account)
}

func (uc *DefaultSettlementUsecase) submitPayout(ctx context.Context, pool *domain.Pool, payout *domain.GatewayTransaction, account *domain.PayoutAccount) (*settlementdto.DistributePrizeOutput, error) {
	res, err := uc.callGateway("create_payout", func() (*domain.GatewayResult, error) {
		return uc.gateway.CreatePayout(ctx, domain.PayoutRequest{
			IdempotencyKey: payout.IdempotencyKey,
			Reference:      payout.ID,
			Amount:         payout.Amount,
			Currency:       payout.Currency,
			Receiver:       *account,
			Note:           fmt.Sprintf("Prize for tournament %s", pool.TournamentID),
		})
	})
	if errors.Is(err, domain.ErrGatewayRejected) {
		if _, _, uerr := uc.applyPayoutStatus(ctx, payout, domain.TxStatusFailed, nil); uerr != nil {
			uc.logger.Error("failed to record rejected payout", "payout_id", payout.ID, "error", uerr.Error())
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	tx, err := uc.ledger.RecordPayoutSubmission(ctx, payout.ID, res.ExternalID, res.Status, res.Raw, uc.now())
	if err != nil {
		return nil, err
	}
	uc.archive(ctx, tx, "create_payout", tx.Status, res.Raw)
	uc.metrics.RecordPayout(tx.Status, tx.Currency, tx.Amount)
	uc.publish(ctx, domain.EntityTransaction, tx.ID, tx.PoolID, string(tx.Status))

	if tx.Status.IsPayoutFailure() {
		return nil, fmt.Errorf("payout %s ended %s: %w", tx.ID, tx.Status, domain.ErrGatewayRejected)
	}
	return uc.finishDistribution(ctx, pool, tx)
}

func (uc *DefaultSettlementUsecase) finishDistribution(ctx context.Context, pool *domain.Pool, payout *domain.GatewayTransaction) (*settlementdto.DistributePrizeOutput, error) {
	flagged, err := uc.ledger.MarkPoolDistributed(ctx, pool.ID, payout.ID, payout.UserID, uc.now())
	if errors.Is(err, domain.ErrLedgerConflict) {
		// выплата могла провалиться между отправкой и отметкой
		if current, gerr := uc.ledger.GetTransactionByID(ctx, payout.ID); gerr == nil && current.Status.IsPayoutFailure() {
			return nil, fmt.Errorf("payout %s ended %s: %w", current.ID, current.Status, domain.ErrGatewayRejected)
		}
	}
	if err != nil {
		return nil, err
	}

	uc.metrics.RecordPoolDistributed(flagged.Currency)
	uc.publish(ctx, domain.EntityPool, flagged.ID, flagged.ID, "DISTRIBUTED")
	uc.logger.Info("pool distributed",
		"pool_id", flagged.ID,
		"winner_user_id", payout.UserID,
		"payout_id", payout.ID,
		"amount", payout.Amount.String(),
	)
	return &settlementdto.DistributePrizeOutput{Pool: flagged, Payout: payout}, nil
}

func (uc *DefaultSettlementUsecase) payoutAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	if uc.users == nil {
		return &domain.PayoutAccount{
			UserID:        userID,
			RecipientType: defaultRecipientType,
			Receiver:      userID,
		}, nil
	}
	return uc.users.GetPayoutAccount(ctx, userID)
}

func payoutKey(poolID string, attempt int) string {
	return fmt.Sprintf("payout-%s-%d", poolID, attempt)
}

func payoutAttempt(key string) int {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return 1
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return 1
	}
	return n
}

// CheckPayoutStatus refreshes a payout from the gateway. handle is the
// provider batch id or the internal transaction id.
func (uc *DefaultSettlementUsecase) CheckPayoutStatus(ctx context.Context, payoutHandle string) (*domain.GatewayTransaction, error) {
	const op = "check_payout_status"

	payoutHandle = strings.TrimSpace(payoutHandle)
	if payoutHandle == "" {
		return nil, uc.fail(op, fmt.Errorf("%w: payout handle is required", domain.ErrValidation))
	}
	tx, err := uc.ledger.GetTransactionByExternalID(ctx, payoutHandle)
	if errors.Is(err, domain.ErrNotFound) {
		tx, err = uc.ledger.GetTransactionByID(ctx, payoutHandle)
	}
	if err != nil {
		return nil, uc.fail(op, err)
	}
	if tx.Type != domain.TransactionPayout {
		return nil, uc.fail(op, fmt.Errorf("%w: %s is not a payout", domain.ErrValidation, payoutHandle))
	}

	updated, _, err := uc.refreshPayout(ctx, tx)
	if err != nil {
		return nil, uc.fail(op, err)
	}
	return updated, nil
}

func (uc *DefaultSettlementUsecase) refreshPayout(ctx context.Context, tx *domain.GatewayTransaction) (*domain.GatewayTransaction, bool, error) {
	if tx.Status.IsTerminal() || tx.ExternalID == "" {
		return tx, false, nil
	}
	res, err := uc.callGateway("get_payout", func() (*domain.GatewayResult, error) {
		return uc.gateway.GetPayoutStatus(ctx, tx.ExternalID)
	})
	if err != nil {
		return nil, false, err
	}
	return uc.applyPayoutStatus(ctx, tx, res.Status, res.Raw)
}

// applyPayoutStatus records a terminal payout status. Non-terminal statuses
// and already settled payouts are left alone.
func (uc *DefaultSettlementUsecase) applyPayoutStatus(ctx context.Context, tx *domain.GatewayTransaction, status domain.TransactionStatus, raw []byte) (*domain.GatewayTransaction, bool, error) {
	if !status.IsTerminal() {
		return tx, false, nil
	}
	updated, applied, err := uc.ledger.UpdatePayoutStatus(ctx, tx.ID, status, raw, uc.now())
	if err != nil {
		return nil, false, err
	}
	if applied {
		uc.archive(ctx, updated, "payout_status", updated.Status, raw)
		uc.metrics.RecordPayout(updated.Status, updated.Currency, updated.Amount)
		uc.publish(ctx, domain.EntityTransaction, updated.ID, updated.PoolID, string(updated.Status))
		uc.logger.Info("payout settled", "payout_id", updated.ID, "status", string(updated.Status))
	}
	return updated, applied, nil
}
