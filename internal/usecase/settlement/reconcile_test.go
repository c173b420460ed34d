package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) at(t time.Time) {
	f.uc.now = func() time.Time { return t }
}

func TestReconcileResolvesStaleCaptures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	f.at(base.Add(-20 * time.Minute))
	pool := f.createPool(t, "T1")
	paid := f.initiate(t, pool.ID, "U1", "10")
	approved := f.initiate(t, pool.ID, "U2", "5")
	waiting := f.initiate(t, pool.ID, "U3", "7")
	fresh := base.Add(-5 * time.Minute)
	f.at(base.Add(-4 * time.Hour))
	abandoned := f.initiate(t, pool.ID, "U4", "3")
	f.at(fresh)
	recent := f.initiate(t, pool.ID, "U5", "1")

	// webhooks lost: provider already completed one order and saw approval on another
	f.gateway.setOrderStatus(paid.OrderHandle, domain.TxStatusCompleted)
	f.gateway.setOrderStatus(approved.OrderHandle, domain.TxStatusPending)

	f.at(base)
	report, err := f.uc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.CapturesChecked)
	assert.Equal(t, 3, report.CapturesResolved)
	assert.Equal(t, 0, report.Failures)
	assert.Equal(t, 0, report.InvariantViolations)

	statusOf := func(out string) domain.TransactionStatus {
		tx, err := f.ledger.GetTransactionByExternalID(ctx, out)
		require.NoError(t, err)
		return tx.Status
	}
	assert.Equal(t, domain.TxStatusCompleted, statusOf(paid.OrderHandle))
	assert.Equal(t, domain.TxStatusCompleted, statusOf(approved.OrderHandle))
	assert.Equal(t, domain.TxStatusCreated, statusOf(waiting.OrderHandle))
	assert.Equal(t, domain.TxStatusCancelled, statusOf(abandoned.OrderHandle))
	assert.Equal(t, domain.TxStatusCreated, statusOf(recent.OrderHandle))

	current, err := f.uc.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, "15.00", current.TotalAmount.StringFixed(2))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconcileResolvedTotal.WithLabelValues("CAPTURE", "CANCELLED")))
}

func TestReconcileResumesInterruptedDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	f.at(base.Add(-time.Hour))
	pool := f.fundedClosedPool(t, "T1", "U1")
	f.gateway.set(func(g *fakeGateway) { g.payoutErr = domain.ErrGatewayTimeout })
	_, err := f.uc.DistributePrize(ctx, pool.ID, "U1")
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	f.gateway.set(func(g *fakeGateway) { g.payoutErr = nil })

	f.at(base)
	report, err := f.uc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DistributionsResumed)
	assert.Equal(t, 0, report.Failures)

	current, err := f.uc.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.True(t, current.Distributed)
	assert.Equal(t, 1, f.gateway.distinctPayouts())
}

func TestReconcileLeavesInFlightReservationAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	f.at(base.Add(-time.Minute))
	pool := f.fundedClosedPool(t, "T1", "U1")
	f.gateway.set(func(g *fakeGateway) { g.payoutErr = domain.ErrGatewayTimeout })
	_, err := f.uc.DistributePrize(ctx, pool.ID, "U1")
	require.Error(t, err)
	f.gateway.set(func(g *fakeGateway) { g.payoutErr = nil })

	f.at(base)
	report, err := f.uc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.DistributionsResumed)
	assert.Equal(t, 1, f.gateway.payoutCalls)
}

func TestReconcileRefreshesProcessingPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	f.at(base.Add(-time.Hour))
	pool := f.fundedClosedPool(t, "T1", "U1")
	out, err := f.uc.DistributePrize(ctx, pool.ID, "U1")
	require.NoError(t, err)
	f.gateway.setPayoutStatus(out.Payout.ExternalID, domain.TxStatusSuccess)

	f.at(base)
	report, err := f.uc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PayoutsChecked)
	assert.Equal(t, 1, report.PayoutsResolved)

	tx, err := f.ledger.GetTransactionByID(ctx, out.Payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, tx.Status)
}

// skewedLedger reports a completed sum that disagrees with the pool total.
type skewedLedger struct {
	domain.LedgerRepository
}

func (l skewedLedger) SumCompletedContributions(ctx context.Context, poolID string) (decimal.Decimal, error) {
	sum, err := l.LedgerRepository.SumCompletedContributions(ctx, poolID)
	return sum.Add(decimal.NewFromInt(1)), err
}

func TestReconcileAuditsPoolTotals(t *testing.T) {
	f := newFixture(t, withLedger(func(s *memory.LedgerStore) domain.LedgerRepository {
		return skewedLedger{LedgerRepository: s}
	}))
	ctx := context.Background()
	f.createPool(t, "T1")
	f.createPool(t, "T2")

	report, err := f.uc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PoolsAudited)
	assert.Equal(t, 2, report.InvariantViolations)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.InvariantViolationsTotal))

	current, err := f.ledger.GetPoolByTournamentID(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, current.TotalAmount.IsZero())
}
