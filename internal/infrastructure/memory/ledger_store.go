package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

// LedgerStore keeps the ledger in process memory. A single mutex makes each
// method atomic, which gives the same conditional-update contract as the
// relational store.
type LedgerStore struct {
	mu sync.Mutex

	pools         map[string]*domain.Pool
	contributions map[string]*domain.Contribution
	transactions  map[string]*domain.GatewayTransaction

	poolByTournament   map[string]string
	contributionByTx   map[string]string
	txByExternalID     map[string]string
	txByIdempotencyKey map[string]string
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		pools:              make(map[string]*domain.Pool),
		contributions:      make(map[string]*domain.Contribution),
		transactions:       make(map[string]*domain.GatewayTransaction),
		poolByTournament:   make(map[string]string),
		contributionByTx:   make(map[string]string),
		txByExternalID:     make(map[string]string),
		txByIdempotencyKey: make(map[string]string),
	}
}

func (s *LedgerStore) CreatePool(ctx context.Context, pool *domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.poolByTournament[pool.TournamentID]; ok {
		return fmt.Errorf("tournament %s: %w", pool.TournamentID, domain.ErrAlreadyExists)
	}
	if _, ok := s.pools[pool.ID]; ok {
		return fmt.Errorf("pool %s: %w", pool.ID, domain.ErrAlreadyExists)
	}
	s.pools[pool.ID] = pool.Clone()
	s.poolByTournament[pool.TournamentID] = pool.ID
	return nil
}

func (s *LedgerStore) GetPoolByID(ctx context.Context, poolID string) (*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrNotFound)
	}
	return pool.Clone(), nil
}

func (s *LedgerStore) GetPoolByTournamentID(ctx context.Context, tournamentID string) (*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poolID, ok := s.poolByTournament[tournamentID]
	if !ok {
		return nil, fmt.Errorf("pool for tournament %s: %w", tournamentID, domain.ErrNotFound)
	}
	return s.pools[poolID].Clone(), nil
}

func (s *LedgerStore) ListPools(ctx context.Context, limit, offset int) ([]*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make([]*domain.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p.Clone())
	}
	sort.Slice(pools, func(i, j int) bool {
		if pools[i].CreatedAt.Equal(pools[j].CreatedAt) {
			return pools[i].ID < pools[j].ID
		}
		return pools[i].CreatedAt.Before(pools[j].CreatedAt)
	})
	return page(pools, limit, offset), nil
}

func (s *LedgerStore) ClosePool(ctx context.Context, poolID string, winnerUserID *string, closedAt time.Time) (*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrNotFound)
	}
	if pool.Status != domain.PoolStatusCollecting {
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrAlreadyClosed)
	}
	pool.Status = domain.PoolStatusClosed
	at := closedAt
	pool.ClosedAt = &at
	if winnerUserID != nil {
		w := *winnerUserID
		pool.WinnerUserID = &w
	}
	return pool.Clone(), nil
}

func (s *LedgerStore) CreateContribution(ctx context.Context, tx *domain.GatewayTransaction, contribution *domain.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[contribution.PoolID]; !ok {
		return fmt.Errorf("pool %s: %w", contribution.PoolID, domain.ErrNotFound)
	}
	if err := s.checkTransactionKeys(tx); err != nil {
		return err
	}
	s.insertTransaction(tx)
	s.contributions[contribution.ID] = contribution.Clone()
	s.contributionByTx[tx.ID] = contribution.ID
	return nil
}

func (s *LedgerStore) GetContributionByID(ctx context.Context, contributionID string) (*domain.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contributions[contributionID]
	if !ok {
		return nil, fmt.Errorf("contribution %s: %w", contributionID, domain.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *LedgerStore) GetContributionByTransactionID(ctx context.Context, txID string) (*domain.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.contributionByTx[txID]
	if !ok {
		return nil, fmt.Errorf("contribution for transaction %s: %w", txID, domain.ErrNotFound)
	}
	return s.contributions[id].Clone(), nil
}

func (s *LedgerStore) ListContributionsByPool(ctx context.Context, poolID string) ([]*domain.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Contribution
	for _, c := range s.contributions {
		if c.PoolID == poolID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LedgerStore) SumCompletedContributions(ctx context.Context, poolID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, c := range s.contributions {
		if c.PoolID == poolID && c.Status == domain.ContributionCompleted {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

func (s *LedgerStore) GetTransactionByID(ctx context.Context, txID string) (*domain.GatewayTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (s *LedgerStore) GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.GatewayTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.txByExternalID[externalID]
	if !ok {
		return nil, fmt.Errorf("transaction with external id %s: %w", externalID, domain.ErrNotFound)
	}
	return s.transactions[id].Clone(), nil
}

func (s *LedgerStore) ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.GatewayTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.GatewayTransaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *LedgerStore) FindStaleTransactions(ctx context.Context, txType domain.TransactionType, statuses []domain.TransactionStatus, olderThan time.Time, limit int) ([]*domain.GatewayTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.GatewayTransaction
	for _, tx := range s.transactions {
		if tx.Type != txType || !tx.CreatedAt.Before(olderThan) || !containsStatus(statuses, tx.Status) {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, limit, 0), nil
}

func (s *LedgerStore) MarkCapturePending(ctx context.Context, txID string, raw []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if tx.Type != domain.TransactionCapture || tx.Status != domain.TxStatusCreated {
		return nil
	}
	tx.Status = domain.TxStatusPending
	tx.UpdatedAt = at
	if raw != nil {
		tx.RawResponse = append([]byte(nil), raw...)
	}
	return nil
}

func (s *LedgerStore) CompleteContribution(ctx context.Context, txID string, raw []byte, completedAt time.Time) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, contribution, pool, err := s.captureRows(txID)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return s.result(tx, contribution, pool, false), nil
	}
	if contribution.Status != domain.ContributionPending {
		return nil, fmt.Errorf("contribution %s is %s: %w", contribution.ID, contribution.Status, domain.ErrLedgerConflict)
	}

	at := completedAt
	tx.Status = domain.TxStatusCompleted
	tx.CompletedAt = &at
	tx.UpdatedAt = completedAt
	if raw != nil {
		tx.RawResponse = append([]byte(nil), raw...)
	}
	contribution.Status = domain.ContributionCompleted
	contribution.CompletedAt = &at
	pool.TotalAmount = pool.TotalAmount.Add(contribution.Amount)

	return s.result(tx, contribution, pool, true), nil
}

func (s *LedgerStore) FailContribution(ctx context.Context, txID string, status domain.TransactionStatus, reason string, raw []byte, at time.Time) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, contribution, pool, err := s.captureRows(txID)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return s.result(tx, contribution, pool, false), nil
	}
	if contribution.Status != domain.ContributionPending {
		return nil, fmt.Errorf("contribution %s is %s: %w", contribution.ID, contribution.Status, domain.ErrLedgerConflict)
	}

	tx.Status = status
	tx.UpdatedAt = at
	failedAt := at
	tx.CompletedAt = &failedAt
	if raw != nil {
		tx.RawResponse = append([]byte(nil), raw...)
	}
	contribution.Status = domain.ContributionFailed
	contribution.FailureReason = reason

	return s.result(tx, contribution, pool, true), nil
}

func (s *LedgerStore) ReservePayout(ctx context.Context, payout *domain.GatewayTransaction, replaceTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[payout.PoolID]
	if !ok {
		return fmt.Errorf("pool %s: %w", payout.PoolID, domain.ErrNotFound)
	}
	if pool.Distributed {
		return fmt.Errorf("pool %s: %w", pool.ID, domain.ErrAlreadyDistributed)
	}
	if pool.Status != domain.PoolStatusClosed {
		return fmt.Errorf("pool %s: %w", pool.ID, domain.ErrPoolOpen)
	}
	if pool.PayoutTxID != nil {
		if replaceTxID == "" || *pool.PayoutTxID != replaceTxID {
			return fmt.Errorf("pool %s has payout %s: %w", pool.ID, *pool.PayoutTxID, domain.ErrAlreadyDistributed)
		}
		if old, ok := s.transactions[replaceTxID]; !ok || !old.Status.IsPayoutFailure() {
			return fmt.Errorf("payout %s is still live: %w", replaceTxID, domain.ErrLedgerConflict)
		}
	}
	if err := s.checkTransactionKeys(payout); err != nil {
		return err
	}

	s.insertTransaction(payout)
	id := payout.ID
	pool.PayoutTxID = &id
	return nil
}

func (s *LedgerStore) RecordPayoutSubmission(ctx context.Context, txID, externalID string, status domain.TransactionStatus, raw []byte, at time.Time) (*domain.GatewayTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if tx.ExternalID != "" {
		if tx.ExternalID == externalID {
			return tx.Clone(), nil
		}
		return nil, fmt.Errorf("payout %s already submitted as %s: %w", txID, tx.ExternalID, domain.ErrLedgerConflict)
	}
	if tx.Status != domain.TxStatusProcessing {
		return nil, fmt.Errorf("payout %s is %s: %w", txID, tx.Status, domain.ErrLedgerConflict)
	}
	if other, taken := s.txByExternalID[externalID]; taken && other != txID {
		return nil, fmt.Errorf("external id %s belongs to %s: %w", externalID, other, domain.ErrLedgerConflict)
	}

	tx.ExternalID = externalID
	s.txByExternalID[externalID] = txID
	tx.Status = status
	tx.UpdatedAt = at
	if status.IsTerminal() {
		doneAt := at
		tx.CompletedAt = &doneAt
	}
	if raw != nil {
		tx.RawResponse = append([]byte(nil), raw...)
	}
	return tx.Clone(), nil
}

func (s *LedgerStore) UpdatePayoutStatus(ctx context.Context, txID string, status domain.TransactionStatus, raw []byte, at time.Time) (*domain.GatewayTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, false, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if tx.Type != domain.TransactionPayout || tx.Status != domain.TxStatusProcessing || !status.IsTerminal() {
		return tx.Clone(), false, nil
	}
	tx.Status = status
	tx.UpdatedAt = at
	doneAt := at
	tx.CompletedAt = &doneAt
	if raw != nil {
		tx.RawResponse = append([]byte(nil), raw...)
	}
	if status.IsPayoutFailure() {
		// деньги не ушли: пул снова ждёт выплату
		if pool, ok := s.pools[tx.PoolID]; ok && pool.PayoutTxID != nil && *pool.PayoutTxID == txID {
			pool.Distributed = false
			pool.DistributedAt = nil
		}
	}
	return tx.Clone(), true, nil
}

func (s *LedgerStore) MarkPoolDistributed(ctx context.Context, poolID, payoutTxID, winnerUserID string, at time.Time) (*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrNotFound)
	}
	if pool.Distributed {
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrAlreadyDistributed)
	}
	if pool.PayoutTxID == nil || *pool.PayoutTxID != payoutTxID {
		return nil, fmt.Errorf("pool %s is not reserved for payout %s: %w", poolID, payoutTxID, domain.ErrLedgerConflict)
	}
	if payout, ok := s.transactions[payoutTxID]; ok && payout.Status.IsPayoutFailure() {
		return nil, fmt.Errorf("payout %s is %s: %w", payoutTxID, payout.Status, domain.ErrLedgerConflict)
	}
	pool.Distributed = true
	w := winnerUserID
	pool.WinnerUserID = &w
	distributedAt := at
	pool.DistributedAt = &distributedAt
	return pool.Clone(), nil
}

func (s *LedgerStore) FindUndistributedPayouts(ctx context.Context, limit int) ([]*domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Pool
	for _, p := range s.pools {
		if !p.Distributed && p.PayoutTxID != nil {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, 0), nil
}

// captureRows loads a capture transaction with its contribution and pool. Caller holds mu.
func (s *LedgerStore) captureRows(txID string) (*domain.GatewayTransaction, *domain.Contribution, *domain.Pool, error) {
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if tx.Type != domain.TransactionCapture {
		return nil, nil, nil, fmt.Errorf("%w: transaction %s is not a capture", domain.ErrValidation, txID)
	}
	cid, ok := s.contributionByTx[txID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("contribution for transaction %s: %w", txID, domain.ErrNotFound)
	}
	pool, ok := s.pools[tx.PoolID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("pool %s: %w", tx.PoolID, domain.ErrNotFound)
	}
	return tx, s.contributions[cid], pool, nil
}

func (s *LedgerStore) result(tx *domain.GatewayTransaction, c *domain.Contribution, p *domain.Pool, applied bool) *domain.SettlementResult {
	return &domain.SettlementResult{
		Transaction:  tx.Clone(),
		Contribution: c.Clone(),
		Pool:         p.Clone(),
		Applied:      applied,
	}
}

func (s *LedgerStore) checkTransactionKeys(tx *domain.GatewayTransaction) error {
	if _, ok := s.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, domain.ErrLedgerConflict)
	}
	if tx.ExternalID != "" {
		if _, ok := s.txByExternalID[tx.ExternalID]; ok {
			return fmt.Errorf("external id %s: %w", tx.ExternalID, domain.ErrLedgerConflict)
		}
	}
	if _, ok := s.txByIdempotencyKey[tx.IdempotencyKey]; ok {
		return fmt.Errorf("idempotency key %s: %w", tx.IdempotencyKey, domain.ErrLedgerConflict)
	}
	return nil
}

func (s *LedgerStore) insertTransaction(tx *domain.GatewayTransaction) {
	s.transactions[tx.ID] = tx.Clone()
	if tx.ExternalID != "" {
		s.txByExternalID[tx.ExternalID] = tx.ID
	}
	s.txByIdempotencyKey[tx.IdempotencyKey] = tx.ID
}

func containsStatus(statuses []domain.TransactionStatus, status domain.TransactionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
