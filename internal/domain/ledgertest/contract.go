// Package ledgertest holds the behaviour every LedgerRepository backend must share.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty ledger for one subtest.
type Factory func(t *testing.T) domain.LedgerRepository

func RunLedgerContract(t *testing.T, newLedger Factory) {
	t.Run("pool per tournament is unique", func(t *testing.T) { testPoolUnique(t, newLedger(t)) })
	t.Run("missing rows are not found", func(t *testing.T) { testNotFound(t, newLedger(t)) })
	t.Run("close pool once", func(t *testing.T) { testClosePool(t, newLedger(t)) })
	t.Run("concurrent close has one winner", func(t *testing.T) { testConcurrentClose(t, newLedger(t)) })
	t.Run("contribution is stored with its transaction", func(t *testing.T) { testCreateContribution(t, newLedger(t)) })
	t.Run("complete contribution credits once", func(t *testing.T) { testCompleteOnce(t, newLedger(t)) })
	t.Run("concurrent completions keep the total", func(t *testing.T) { testConcurrentComplete(t, newLedger(t)) })
	t.Run("failed contribution leaves total", func(t *testing.T) { testFailContribution(t, newLedger(t)) })
	t.Run("payout reservation is exclusive", func(t *testing.T) { testReservePayout(t, newLedger(t)) })
	t.Run("failed payout can be replaced", func(t *testing.T) { testReplaceFailedPayout(t, newLedger(t)) })
	t.Run("distributed flag is set once", func(t *testing.T) { testMarkDistributed(t, newLedger(t)) })
	t.Run("failed payout clears distributed flag", func(t *testing.T) { testFailedPayoutReopensPool(t, newLedger(t)) })
	t.Run("stale transactions", func(t *testing.T) { testFindStale(t, newLedger(t)) })
	t.Run("user transactions", func(t *testing.T) { testListUserTransactions(t, newLedger(t)) })
}

func NewPool(tournamentID string, createdAt time.Time) *domain.Pool {
	return &domain.Pool{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		TotalAmount:  decimal.Zero,
		Currency:     "USD",
		Status:       domain.PoolStatusCollecting,
		CreatedAt:    createdAt,
	}
}

func NewContribution(pool *domain.Pool, userID, amount string, createdAt time.Time) (*domain.GatewayTransaction, *domain.Contribution) {
	tx := &domain.GatewayTransaction{
		ID:             uuid.NewString(),
		ExternalID:     "ORDER-" + uuid.NewString(),
		PoolID:         pool.ID,
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		Currency:       pool.Currency,
		Type:           domain.TransactionCapture,
		Status:         domain.TxStatusCreated,
		IdempotencyKey: "cap-" + uuid.NewString(),
		ApproveURL:     "https://gateway.test/approve",
		RawResponse:    []byte(`{"status":"CREATED"}`),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	c := &domain.Contribution{
		ID:            uuid.NewString(),
		PoolID:        pool.ID,
		UserID:        userID,
		Amount:        tx.Amount,
		Currency:      pool.Currency,
		Status:        domain.ContributionPending,
		TransactionID: tx.ID,
		CreatedAt:     createdAt,
	}
	return tx, c
}

func NewPayout(pool *domain.Pool, winner string, createdAt time.Time) *domain.GatewayTransaction {
	return &domain.GatewayTransaction{
		ID:             uuid.NewString(),
		PoolID:         pool.ID,
		UserID:         winner,
		Amount:         pool.TotalAmount,
		Currency:       pool.Currency,
		Type:           domain.TransactionPayout,
		Status:         domain.TxStatusProcessing,
		IdempotencyKey: "pay-" + uuid.NewString(),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func mustPool(t *testing.T, l domain.LedgerRepository) *domain.Pool {
	t.Helper()
	pool := NewPool("tournament-"+uuid.NewString(), time.Now().UTC())
	require.NoError(t, l.CreatePool(context.Background(), pool))
	return pool
}

func mustContribution(t *testing.T, l domain.LedgerRepository, pool *domain.Pool, user, amount string) (*domain.GatewayTransaction, *domain.Contribution) {
	t.Helper()
	tx, c := NewContribution(pool, user, amount, time.Now().UTC())
	require.NoError(t, l.CreateContribution(context.Background(), tx, c))
	return tx, c
}

func assertInvariant(t *testing.T, l domain.LedgerRepository, poolID string) {
	t.Helper()
	ctx := context.Background()
	pool, err := l.GetPoolByID(ctx, poolID)
	require.NoError(t, err)
	sum, err := l.SumCompletedContributions(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, pool.TotalAmount.Equal(sum), "total %s != completed sum %s", pool.TotalAmount, sum)
}

func testPoolUnique(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)

	dup := NewPool(pool.TournamentID, time.Now().UTC())
	err := l.CreatePool(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := l.GetPoolByTournamentID(ctx, pool.TournamentID)
	require.NoError(t, err)
	assert.Equal(t, pool.ID, got.ID)
	assert.Equal(t, domain.PoolStatusCollecting, got.Status)
	assert.True(t, got.TotalAmount.IsZero())
	assert.False(t, got.Distributed)
}

func testNotFound(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	missing := uuid.NewString()

	_, err := l.GetPoolByID(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.GetPoolByTournamentID(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.GetTransactionByExternalID(ctx, "ORDER-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.GetContributionByID(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.ClosePool(ctx, missing, nil, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.CompleteContribution(ctx, missing, nil, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testClosePool(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	winner := "user-1"

	closed, err := l.ClosePool(ctx, pool.ID, &winner, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.PoolStatusClosed, closed.Status)
	require.NotNil(t, closed.WinnerUserID)
	assert.Equal(t, winner, *closed.WinnerUserID)
	assert.NotNil(t, closed.ClosedAt)

	_, err = l.ClosePool(ctx, pool.ID, nil, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func testConcurrentClose(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ClosePool(ctx, pool.ID, nil, time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, domain.ErrAlreadyClosed) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func testCreateContribution(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	tx, c := mustContribution(t, l, pool, "user-1", "25.00")

	byExt, err := l.GetTransactionByExternalID(ctx, tx.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byExt.ID)
	assert.Equal(t, domain.TxStatusCreated, byExt.Status)
	assert.Equal(t, tx.IdempotencyKey, byExt.IdempotencyKey)
	assert.True(t, byExt.Amount.Equal(decimal.RequireFromString("25")))

	byTx, err := l.GetContributionByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byTx.ID)
	assert.Equal(t, domain.ContributionPending, byTx.Status)

	list, err := l.ListContributionsByPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	dupTx, dupC := NewContribution(pool, "user-2", "5.00", time.Now().UTC())
	dupTx.ExternalID = tx.ExternalID
	assert.Error(t, l.CreateContribution(ctx, dupTx, dupC))
	list, err = l.ListContributionsByPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1, "a rejected insert must not leave a contribution behind")
}

func testCompleteOnce(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	tx, _ := mustContribution(t, l, pool, "user-1", "25.00")

	require.NoError(t, l.MarkCapturePending(ctx, tx.ID, nil, time.Now().UTC()))

	res, err := l.CompleteContribution(ctx, tx.ID, []byte(`{"status":"COMPLETED"}`), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)
	assert.NotNil(t, res.Transaction.CompletedAt)
	assert.Equal(t, domain.ContributionCompleted, res.Contribution.Status)
	assert.True(t, res.Pool.TotalAmount.Equal(decimal.RequireFromString("25")))

	again, err := l.CompleteContribution(ctx, tx.ID, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.True(t, again.Pool.TotalAmount.Equal(decimal.RequireFromString("25")))

	assertInvariant(t, l, pool.ID)
}

func testConcurrentComplete(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)

	var txIDs []string
	for i := 0; i < 10; i++ {
		tx, _ := mustContribution(t, l, pool, "user-"+uuid.NewString(), "2.50")
		txIDs = append(txIDs, tx.ID)
	}

	var wg sync.WaitGroup
	for _, id := range txIDs {
		for rep := 0; rep < 2; rep++ {
			wg.Add(1)
			go func(txID string) {
				defer wg.Done()
				_, err := l.CompleteContribution(ctx, txID, nil, time.Now().UTC())
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	got, err := l.GetPoolByID(ctx, pool.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("25")), "total %s", got.TotalAmount)
	assertInvariant(t, l, pool.ID)
}

func testFailContribution(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	okTx, _ := mustContribution(t, l, pool, "user-1", "25.00")
	badTx, _ := mustContribution(t, l, pool, "user-2", "10.00")

	_, err := l.CompleteContribution(ctx, okTx.ID, nil, time.Now().UTC())
	require.NoError(t, err)

	res, err := l.FailContribution(ctx, badTx.ID, domain.TxStatusFailed, "declined", nil, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.TxStatusFailed, res.Transaction.Status)
	assert.Equal(t, domain.ContributionFailed, res.Contribution.Status)
	assert.Equal(t, "declined", res.Contribution.FailureReason)
	assert.True(t, res.Pool.TotalAmount.Equal(decimal.RequireFromString("25")))

	late, err := l.CompleteContribution(ctx, badTx.ID, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, domain.TxStatusFailed, late.Transaction.Status)

	assertInvariant(t, l, pool.ID)
}

func closedPoolWithTotal(t *testing.T, l domain.LedgerRepository) *domain.Pool {
	t.Helper()
	ctx := context.Background()
	pool := mustPool(t, l)
	tx, _ := mustContribution(t, l, pool, "user-1", "25.00")
	_, err := l.CompleteContribution(ctx, tx.ID, nil, time.Now().UTC())
	require.NoError(t, err)
	closed, err := l.ClosePool(ctx, pool.ID, nil, time.Now().UTC())
	require.NoError(t, err)
	return closed
}

func testReservePayout(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()

	open := mustPool(t, l)
	err := l.ReservePayout(ctx, NewPayout(open, "user-1", time.Now().UTC()), "")
	assert.ErrorIs(t, err, domain.ErrPoolOpen)

	pool := closedPoolWithTotal(t, l)
	first := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, first, ""))

	second := NewPayout(pool, "user-1", time.Now().UTC())
	err = l.ReservePayout(ctx, second, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
	_, err = l.GetTransactionByID(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "losing reservation must not be stored")

	got, err := l.GetPoolByID(ctx, pool.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PayoutTxID)
	assert.Equal(t, first.ID, *got.PayoutTxID)
	assert.False(t, got.Distributed)

	undistributed, err := l.FindUndistributedPayouts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, undistributed, 1)
	assert.Equal(t, pool.ID, undistributed[0].ID)
}

func testReplaceFailedPayout(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := closedPoolWithTotal(t, l)

	first := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, first, ""))
	_, err := l.RecordPayoutSubmission(ctx, first.ID, "BATCH-1", domain.TxStatusProcessing, []byte(`{}`), time.Now().UTC())
	require.NoError(t, err)

	updated, applied, err := l.UpdatePayoutStatus(ctx, first.ID, domain.TxStatusDenied, []byte(`{"batch_status":"DENIED"}`), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.TxStatusDenied, updated.Status)

	_, applied, err = l.UpdatePayoutStatus(ctx, first.ID, domain.TxStatusSuccess, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied, "terminal payout status is immutable")

	replacement := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, replacement, first.ID))

	stale := NewPayout(pool, "user-1", time.Now().UTC())
	err = l.ReservePayout(ctx, stale, first.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)

	got, err := l.GetPoolByID(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, *got.PayoutTxID)
}

func testMarkDistributed(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := closedPoolWithTotal(t, l)
	payout := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, payout, ""))

	recorded, err := l.RecordPayoutSubmission(ctx, payout.ID, "BATCH-7", domain.TxStatusProcessing, []byte(`{"batch_status":"PENDING"}`), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "BATCH-7", recorded.ExternalID)

	again, err := l.RecordPayoutSubmission(ctx, payout.ID, "BATCH-7", domain.TxStatusProcessing, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "BATCH-7", again.ExternalID)

	_, err = l.RecordPayoutSubmission(ctx, payout.ID, "BATCH-8", domain.TxStatusProcessing, nil, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrLedgerConflict)

	byExt, err := l.GetTransactionByExternalID(ctx, "BATCH-7")
	require.NoError(t, err)
	assert.Equal(t, payout.ID, byExt.ID)

	distributed, err := l.MarkPoolDistributed(ctx, pool.ID, payout.ID, "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, distributed.Distributed)
	assert.NotNil(t, distributed.DistributedAt)
	require.NotNil(t, distributed.WinnerUserID)
	assert.Equal(t, "user-1", *distributed.WinnerUserID)

	_, err = l.MarkPoolDistributed(ctx, pool.ID, payout.ID, "user-1", time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)

	err = l.ReservePayout(ctx, NewPayout(pool, "user-1", time.Now().UTC()), payout.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)

	undistributed, err := l.FindUndistributedPayouts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, undistributed)
}

func testFailedPayoutReopensPool(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := closedPoolWithTotal(t, l)
	payout := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, payout, ""))
	_, err := l.RecordPayoutSubmission(ctx, payout.ID, "BATCH-9", domain.TxStatusProcessing, nil, time.Now().UTC())
	require.NoError(t, err)
	_, err = l.MarkPoolDistributed(ctx, pool.ID, payout.ID, "user-1", time.Now().UTC())
	require.NoError(t, err)

	_, applied, err := l.UpdatePayoutStatus(ctx, payout.ID, domain.TxStatusDenied, []byte(`{"batch_status":"DENIED"}`), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := l.GetPoolByID(ctx, pool.ID)
	require.NoError(t, err)
	assert.False(t, got.Distributed, "denied payout must not leave the pool distributed")
	assert.Nil(t, got.DistributedAt)
	require.NotNil(t, got.PayoutTxID)
	assert.Equal(t, payout.ID, *got.PayoutTxID)

	_, err = l.MarkPoolDistributed(ctx, pool.ID, payout.ID, "user-1", time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrLedgerConflict, "failed payout cannot mark the pool distributed")

	replacement := NewPayout(pool, "user-1", time.Now().UTC())
	require.NoError(t, l.ReservePayout(ctx, replacement, payout.ID))
	_, err = l.RecordPayoutSubmission(ctx, replacement.ID, "BATCH-10", domain.TxStatusProcessing, nil, time.Now().UTC())
	require.NoError(t, err)
	distributed, err := l.MarkPoolDistributed(ctx, pool.ID, replacement.ID, "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, distributed.Distributed)

	_, applied, err = l.UpdatePayoutStatus(ctx, replacement.ID, domain.TxStatusSuccess, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)
	got, err = l.GetPoolByID(ctx, pool.ID)
	require.NoError(t, err)
	assert.True(t, got.Distributed, "successful payout keeps the flag")
}

func testFindStale(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	now := time.Now().UTC()

	oldTx, oldC := NewContribution(pool, "user-1", "1.00", now.Add(-time.Hour))
	require.NoError(t, l.CreateContribution(ctx, oldTx, oldC))
	freshTx, freshC := NewContribution(pool, "user-2", "1.00", now)
	require.NoError(t, l.CreateContribution(ctx, freshTx, freshC))
	doneTx, doneC := NewContribution(pool, "user-3", "1.00", now.Add(-time.Hour))
	require.NoError(t, l.CreateContribution(ctx, doneTx, doneC))
	_, err := l.CompleteContribution(ctx, doneTx.ID, nil, now)
	require.NoError(t, err)

	stale, err := l.FindStaleTransactions(ctx, domain.TransactionCapture,
		[]domain.TransactionStatus{domain.TxStatusCreated, domain.TxStatusPending}, now.Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, oldTx.ID, stale[0].ID)

	payouts, err := l.FindStaleTransactions(ctx, domain.TransactionPayout,
		[]domain.TransactionStatus{domain.TxStatusProcessing}, now, 10)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func testListUserTransactions(t *testing.T, l domain.LedgerRepository) {
	ctx := context.Background()
	pool := mustPool(t, l)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		tx, c := NewContribution(pool, "user-1", "1.00", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, l.CreateContribution(ctx, tx, c))
	}
	other, otherC := NewContribution(pool, "user-2", "1.00", base)
	require.NoError(t, l.CreateContribution(ctx, other, otherC))

	all, err := l.ListTransactionsByUser(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt), "newest first")

	paged, err := l.ListTransactionsByUser(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}
