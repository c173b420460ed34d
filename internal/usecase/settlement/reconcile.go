package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
)

// Reconcile resolves transactions whose callbacks never arrived, resumes
// interrupted distributions and audits pool totals. Individual failures are
// logged and counted; only a failing ledger listing aborts the pass.
func (uc *DefaultSettlementUsecase) Reconcile(ctx context.Context) (*settlementdto.ReconcileReport, error) {
	start := time.Now()
	report := &settlementdto.ReconcileReport{}

	err := uc.reconcile(ctx, report)
	uc.metrics.RecordReconcileRun(err, time.Since(start))
	if err != nil {
		uc.logger.Error("reconciliation aborted", "error", err.Error())
		return report, err
	}

	uc.logger.Info("reconciliation finished",
		"captures_checked", report.CapturesChecked,
		"captures_resolved", report.CapturesResolved,
		"payouts_checked", report.PayoutsChecked,
		"payouts_resolved", report.PayoutsResolved,
		"distributions_resumed", report.DistributionsResumed,
		"invariant_violations", report.InvariantViolations,
		"failures", report.Failures,
		"duration", time.Since(start).String(),
	)
	return report, nil
}

func (uc *DefaultSettlementUsecase) reconcile(ctx context.Context, report *settlementdto.ReconcileReport) error {
	if err := uc.reconcileCaptures(ctx, report); err != nil {
		return fmt.Errorf("captures: %w", err)
	}
	if err := uc.reconcilePayouts(ctx, report); err != nil {
		return fmt.Errorf("payouts: %w", err)
	}
	if err := uc.resumeDistributions(ctx, report); err != nil {
		return fmt.Errorf("distributions: %w", err)
	}
	if uc.opts.AuditInvariant {
		if err := uc.auditPoolTotals(ctx, report); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	return nil
}

func (uc *DefaultSettlementUsecase) reconcileCaptures(ctx context.Context, report *settlementdto.ReconcileReport) error {
	now := uc.now()
	stale, err := uc.ledger.FindStaleTransactions(ctx, domain.TransactionCapture,
		[]domain.TransactionStatus{domain.TxStatusCreated, domain.TxStatusPending},
		now.Add(-uc.opts.PendingThreshold), uc.opts.BatchSize)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.CapturesChecked++

		resolved, err := uc.reconcileCapture(ctx, tx, now)
		if err != nil {
			report.Failures++
			uc.logger.Warn("capture reconciliation failed", "transaction_id", tx.ID, "error", err.Error())
			continue
		}
		if resolved != "" {
			report.CapturesResolved++
			uc.metrics.RecordReconcileResolved(domain.TransactionCapture, resolved)
		}
	}
	return nil
}

// reconcileCapture returns the status the transaction was moved to, or ""
// when it is still waiting on the payer or the provider.
func (uc *DefaultSettlementUsecase) reconcileCapture(ctx context.Context, tx *domain.GatewayTransaction, now time.Time) (domain.TransactionStatus, error) {
	res, err := uc.callGateway("get_order", func() (*domain.GatewayResult, error) {
		return uc.gateway.GetOrder(ctx, tx.ExternalID)
	})
	if err != nil {
		return "", err
	}

	var result *domain.SettlementResult
	switch res.Status {
	case domain.TxStatusCompleted, domain.TxStatusCancelled, domain.TxStatusFailed:
		uc.archive(ctx, tx, "get_order", res.Status, res.Raw)
		result, err = uc.applyCaptureStatus(ctx, tx, res.Status, res.Raw, "")
	case domain.TxStatusPending:
		result, err = uc.capture(ctx, tx)
	default:
		if now.Sub(tx.CreatedAt) < uc.opts.OrderExpiry {
			return "", nil
		}
		result, err = uc.applyCaptureStatus(ctx, tx, domain.TxStatusCancelled, res.Raw, "order expired before approval")
	}
	if err != nil {
		return "", err
	}
	if result == nil || !result.Applied {
		return "", nil
	}
	return result.Transaction.Status, nil
}

func (uc *DefaultSettlementUsecase) reconcilePayouts(ctx context.Context, report *settlementdto.ReconcileReport) error {
	stale, err := uc.ledger.FindStaleTransactions(ctx, domain.TransactionPayout,
		[]domain.TransactionStatus{domain.TxStatusProcessing},
		uc.now().Add(-uc.opts.PendingThreshold), uc.opts.BatchSize)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// неотправленные резервы добивает resumeDistributions
		if tx.ExternalID == "" {
			continue
		}
		report.PayoutsChecked++

		updated, applied, err := uc.refreshPayout(ctx, tx)
		if err != nil {
			report.Failures++
			uc.logger.Warn("payout reconciliation failed", "payout_id", tx.ID, "error", err.Error())
			continue
		}
		if applied {
			report.PayoutsResolved++
			uc.metrics.RecordReconcileResolved(domain.TransactionPayout, updated.Status)
		}
	}
	return nil
}

func (uc *DefaultSettlementUsecase) resumeDistributions(ctx context.Context, report *settlementdto.ReconcileReport) error {
	pools, err := uc.ledger.FindUndistributedPayouts(ctx, uc.opts.BatchSize)
	if err != nil {
		return err
	}

	cutoff := uc.now().Add(-uc.opts.PendingThreshold)
	for _, pool := range pools {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payout, err := uc.ledger.GetTransactionByID(ctx, *pool.PayoutTxID)
		if err != nil {
			report.Failures++
			uc.logger.Warn("payout reservation lookup failed", "pool_id", pool.ID, "error", err.Error())
			continue
		}

		switch {
		case payout.Status.IsPayoutFailure():
			// повторная выплата только по явному запросу
			continue
		case payout.ExternalID == "":
			if payout.UpdatedAt.After(cutoff) {
				continue
			}
			account, aerr := uc.payoutAccount(ctx, payout.UserID)
			if aerr != nil {
				err = aerr
				break
			}
			_, err = uc.submitPayout(ctx, pool, payout, account)
		default:
			_, err = uc.finishDistribution(ctx, pool, payout)
		}
		if err != nil {
			report.Failures++
			uc.logger.Warn("distribution resume failed", "pool_id", pool.ID, "payout_id", payout.ID, "error", err.Error())
			continue
		}
		report.DistributionsResumed++
	}
	return nil
}

// auditPoolTotals compares every pool's total with its completed
// contributions. Mismatches are reported, never corrected.
func (uc *DefaultSettlementUsecase) auditPoolTotals(ctx context.Context, report *settlementdto.ReconcileReport) error {
	for offset := 0; ; offset += uc.opts.BatchSize {
		pools, err := uc.ledger.ListPools(ctx, uc.opts.BatchSize, offset)
		if err != nil {
			return err
		}
		for _, pool := range pools {
			sum, err := uc.ledger.SumCompletedContributions(ctx, pool.ID)
			if err != nil {
				report.Failures++
				uc.logger.Warn("pool audit failed", "pool_id", pool.ID, "error", err.Error())
				continue
			}
			report.PoolsAudited++
			if !sum.Equal(pool.TotalAmount) {
				report.InvariantViolations++
				uc.metrics.RecordInvariantViolation()
				uc.logger.Error("pool total does not match completed contributions",
					"pool_id", pool.ID,
					"total", pool.TotalAmount.String(),
					"completed_sum", sum.String(),
				)
			}
		}
		if len(pools) < uc.opts.BatchSize {
			return nil
		}
	}
}
