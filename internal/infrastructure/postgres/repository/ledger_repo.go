package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres/mappers"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var pendingCaptureStatuses = []domain.TransactionStatus{domain.TxStatusCreated, domain.TxStatusPending}

type DefaultLedgerRepository struct {
	DB *gorm.DB
}

func NewDefaultLedgerRepository(db *gorm.DB) *DefaultLedgerRepository {
	return &DefaultLedgerRepository{DB: db}
}

func (r *DefaultLedgerRepository) CreatePool(ctx context.Context, pool *domain.Pool) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PoolModel{}).Where("tournament_id = ?", pool.TournamentID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("tournament %s: %w", pool.TournamentID, domain.ErrAlreadyExists)
		}
		if err := tx.Create(mappers.ToGORMPool(pool)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("tournament %s: %w", pool.TournamentID, domain.ErrAlreadyExists)
			}
			return err
		}
		return nil
	})
}

func (r *DefaultLedgerRepository) GetPoolByID(ctx context.Context, poolID string) (*domain.Pool, error) {
	return r.loadPool(r.DB.WithContext(ctx), poolID)
}

func (r *DefaultLedgerRepository) GetPoolByTournamentID(ctx context.Context, tournamentID string) (*domain.Pool, error) {
	var model models.PoolModel
	if err := r.DB.WithContext(ctx).Where("tournament_id = ?", tournamentID).First(&model).Error; err != nil {
		return nil, notFound(err, "pool for tournament %s", tournamentID)
	}
	return mappers.ToDomainPool(&model), nil
}

func (r *DefaultLedgerRepository) ListPools(ctx context.Context, limit, offset int) ([]*domain.Pool, error) {
	var poolModels []models.PoolModel
	query := paginate(r.DB.WithContext(ctx).Order("created_at ASC, id ASC"), limit, offset)
	if err := query.Find(&poolModels).Error; err != nil {
		return nil, err
	}
	pools := make([]*domain.Pool, 0, len(poolModels))
	for i := range poolModels {
		pools = append(pools, mappers.ToDomainPool(&poolModels[i]))
	}
	return pools, nil
}

func (r *DefaultLedgerRepository) ClosePool(ctx context.Context, poolID string, winnerUserID *string, closedAt time.Time) (*domain.Pool, error) {
	db := r.DB.WithContext(ctx)
	updates := map[string]interface{}{
		"status":     domain.PoolStatusClosed,
		"closed_at":  closedAt,
		"updated_at": closedAt,
	}
	if winnerUserID != nil {
		updates["winner_user_id"] = *winnerUserID
	}

	res := db.Model(&models.PoolModel{}).
		Where("id = ? AND status = ?", poolID, domain.PoolStatusCollecting).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.loadPool(db, poolID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrAlreadyClosed)
	}
	return r.loadPool(db, poolID)
}

func (r *DefaultLedgerRepository) CreateContribution(ctx context.Context, gatewayTx *domain.GatewayTransaction, contribution *domain.Contribution) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.loadPool(tx, contribution.PoolID); err != nil {
			return err
		}
		if err := tx.Create(mappers.ToGORMTransaction(gatewayTx)).Error; err != nil {
			return conflict(err, "transaction %s", gatewayTx.ID)
		}
		if err := tx.Create(mappers.ToGORMContribution(contribution)).Error; err != nil {
			return conflict(err, "contribution %s", contribution.ID)
		}
		return nil
	})
}

func (r *DefaultLedgerRepository) GetContributionByID(ctx context.Context, contributionID string) (*domain.Contribution, error) {
	var model models.ContributionModel
	if err := r.DB.WithContext(ctx).Where("id = ?", contributionID).First(&model).Error; err != nil {
		return nil, notFound(err, "contribution %s", contributionID)
	}
	return mappers.ToDomainContribution(&model), nil
}

func (r *DefaultLedgerRepository) GetContributionByTransactionID(ctx context.Context, txID string) (*domain.Contribution, error) {
	return r.loadContributionByTx(r.DB.WithContext(ctx), txID)
}

func (r *DefaultLedgerRepository) ListContributionsByPool(ctx context.Context, poolID string) ([]*domain.Contribution, error) {
	var contributionModels []models.ContributionModel
	if err := r.DB.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("created_at ASC, id ASC").
		Find(&contributionModels).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Contribution, 0, len(contributionModels))
	for i := range contributionModels {
		out = append(out, mappers.ToDomainContribution(&contributionModels[i]))
	}
	return out, nil
}

func (r *DefaultLedgerRepository) SumCompletedContributions(ctx context.Context, poolID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := r.DB.WithContext(ctx).
		Model(&models.ContributionModel{}).
		Select("SUM(amount)").
		Where("pool_id = ? AND status = ?", poolID, domain.ContributionCompleted).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *DefaultLedgerRepository) GetTransactionByID(ctx context.Context, txID string) (*domain.GatewayTransaction, error) {
	return r.loadTransaction(r.DB.WithContext(ctx), txID)
}

func (r *DefaultLedgerRepository) GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.GatewayTransaction, error) {
	var model models.GatewayTransactionModel
	if err := r.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&model).Error; err != nil {
		return nil, notFound(err, "transaction with external id %s", externalID)
	}
	return mappers.ToDomainTransaction(&model), nil
}

func (r *DefaultLedgerRepository) ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.GatewayTransaction, error) {
	var txModels []models.GatewayTransactionModel
	query := paginate(r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC"), limit, offset)
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

func (r *DefaultLedgerRepository) FindStaleTransactions(ctx context.Context, txType domain.TransactionType, statuses []domain.TransactionStatus, olderThan time.Time, limit int) ([]*domain.GatewayTransaction, error) {
	var txModels []models.GatewayTransactionModel
	query := paginate(r.DB.WithContext(ctx).
		Where("type = ? AND status IN ? AND created_at < ?", txType, statuses, olderThan).
		Order("created_at ASC"), limit, 0)
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

func (r *DefaultLedgerRepository) MarkCapturePending(ctx context.Context, txID string, raw []byte, at time.Time) error {
	db := r.DB.WithContext(ctx)
	updates := map[string]interface{}{
		"status":     domain.TxStatusPending,
		"updated_at": at,
	}
	if raw != nil {
		updates["raw_response"] = mappers.ToJSON(raw)
	}
	res := db.Model(&models.GatewayTransactionModel{}).
		Where("id = ? AND type = ? AND status = ?", txID, domain.TransactionCapture, domain.TxStatusCreated).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		_, err := r.loadTransaction(db, txID)
		return err
	}
	return nil
}

func (r *DefaultLedgerRepository) CompleteContribution(ctx context.Context, txID string, raw []byte, completedAt time.Time) (*domain.SettlementResult, error) {
	return r.settleCapture(ctx, txID, func(tx *gorm.DB, gatewayTx *models.GatewayTransactionModel) error {
		txUpdates := map[string]interface{}{
			"status":       domain.TxStatusCompleted,
			"completed_at": completedAt,
			"updated_at":   completedAt,
		}
		if raw != nil {
			txUpdates["raw_response"] = mappers.ToJSON(raw)
		}
		if err := r.transitionCapture(tx, txID, txUpdates); err != nil {
			return err
		}

		contribution, err := r.transitionContribution(tx, txID, map[string]interface{}{
			"status":       domain.ContributionCompleted,
			"completed_at": completedAt,
			"updated_at":   completedAt,
		})
		if err != nil {
			return err
		}

		// Единственное место, где растёт сумма пула
		res := tx.Model(&models.PoolModel{}).
			Where("id = ?", gatewayTx.PoolID).
			Updates(map[string]interface{}{
				"total_amount": gorm.Expr("total_amount + ?", contribution.Amount),
				"updated_at":   completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("pool %s: %w", gatewayTx.PoolID, domain.ErrNotFound)
		}
		return nil
	})
}

func (r *DefaultLedgerRepository) FailContribution(ctx context.Context, txID string, status domain.TransactionStatus, reason string, raw []byte, at time.Time) (*domain.SettlementResult, error) {
	return r.settleCapture(ctx, txID, func(tx *gorm.DB, _ *models.GatewayTransactionModel) error {
		txUpdates := map[string]interface{}{
			"status":       status,
			"completed_at": at,
			"updated_at":   at,
		}
		if raw != nil {
			txUpdates["raw_response"] = mappers.ToJSON(raw)
		}
		if err := r.transitionCapture(tx, txID, txUpdates); err != nil {
			return err
		}
		_, err := r.transitionContribution(tx, txID, map[string]interface{}{
			"status":         domain.ContributionFailed,
			"failure_reason": reason,
			"updated_at":     at,
		})
		return err
	})
}

func (r *DefaultLedgerRepository) ReservePayout(ctx context.Context, payout *domain.GatewayTransaction, replaceTxID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.PoolModel{}).
			Where("id = ? AND status = ? AND distributed = ?", payout.PoolID, domain.PoolStatusClosed, false)
		if replaceTxID == "" {
			query = query.Where("payout_tx_id IS NULL")
		} else {
			old, err := r.loadTransaction(tx, replaceTxID)
			if err != nil {
				return err
			}
			if !old.Status.IsPayoutFailure() {
				return fmt.Errorf("payout %s is still live: %w", replaceTxID, domain.ErrLedgerConflict)
			}
			query = query.Where("payout_tx_id = ?", replaceTxID)
		}

		res := query.Updates(map[string]interface{}{
			"payout_tx_id": payout.ID,
			"updated_at":   payout.CreatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.reservationConflict(tx, payout.PoolID)
		}

		if err := tx.Create(mappers.ToGORMTransaction(payout)).Error; err != nil {
			return conflict(err, "payout %s", payout.ID)
		}
		return nil
	})
}

func (r *DefaultLedgerRepository) RecordPayoutSubmission(ctx context.Context, txID, externalID string, status domain.TransactionStatus, raw []byte, at time.Time) (*domain.GatewayTransaction, error) {
	db := r.DB.WithContext(ctx)
	updates := map[string]interface{}{
		"external_id": externalID,
		"status":      status,
		"updated_at":  at,
	}
	if status.IsTerminal() {
		updates["completed_at"] = at
	}
	if raw != nil {
		updates["raw_response"] = mappers.ToJSON(raw)
	}

	res := db.Model(&models.GatewayTransactionModel{}).
		Where("id = ? AND type = ? AND status = ? AND external_id IS NULL", txID, domain.TransactionPayout, domain.TxStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return nil, conflict(res.Error, "payout %s external id %s", txID, externalID)
	}

	current, err := r.loadTransaction(db, txID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && current.ExternalID != externalID {
		return nil, fmt.Errorf("payout %s is %s with external id %q: %w",
			txID, current.Status, current.ExternalID, domain.ErrLedgerConflict)
	}
	return current, nil
}

func (r *DefaultLedgerRepository) UpdatePayoutStatus(ctx context.Context, txID string, status domain.TransactionStatus, raw []byte, at time.Time) (*domain.GatewayTransaction, bool, error) {
	if !status.IsTerminal() {
		current, err := r.loadTransaction(r.DB.WithContext(ctx), txID)
		return current, false, err
	}

	updates := map[string]interface{}{
		"status":       status,
		"completed_at": at,
		"updated_at":   at,
	}
	if raw != nil {
		updates["raw_response"] = mappers.ToJSON(raw)
	}

	var (
		current *domain.GatewayTransaction
		applied bool
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GatewayTransactionModel{}).
			Where("id = ? AND type = ? AND status = ?", txID, domain.TransactionPayout, domain.TxStatusProcessing).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0

		if applied && status.IsPayoutFailure() {
			// деньги не ушли: пул снова ждёт выплату
			err := tx.Model(&models.PoolModel{}).
				Where("payout_tx_id = ?", txID).
				Updates(map[string]interface{}{
					"distributed":    false,
					"distributed_at": nil,
					"updated_at":     at,
				}).Error
			if err != nil {
				return err
			}
		}

		var err error
		current, err = r.loadTransaction(tx, txID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return current, applied, nil
}

func (r *DefaultLedgerRepository) MarkPoolDistributed(ctx context.Context, poolID, payoutTxID, winnerUserID string, at time.Time) (*domain.Pool, error) {
	db := r.DB.WithContext(ctx)
	liveTx := db.Model(&models.GatewayTransactionModel{}).
		Select("id").
		Where("id = ? AND status NOT IN ?", payoutTxID, []domain.TransactionStatus{
			domain.TxStatusDenied, domain.TxStatusFailed, domain.TxStatusCanceled,
		})
	res := db.Model(&models.PoolModel{}).
		Where("id = ? AND distributed = ? AND payout_tx_id = ?", poolID, false, payoutTxID).
		Where("payout_tx_id IN (?)", liveTx).
		Updates(map[string]interface{}{
			"distributed":    true,
			"winner_user_id": winnerUserID,
			"distributed_at": at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		pool, err := r.loadPool(db, poolID)
		if err != nil {
			return nil, err
		}
		if pool.Distributed {
			return nil, fmt.Errorf("pool %s: %w", poolID, domain.ErrAlreadyDistributed)
		}
		if pool.PayoutTxID != nil && *pool.PayoutTxID == payoutTxID {
			return nil, fmt.Errorf("payout %s has failed: %w", payoutTxID, domain.ErrLedgerConflict)
		}
		return nil, fmt.Errorf("pool %s is not reserved for payout %s: %w", poolID, payoutTxID, domain.ErrLedgerConflict)
	}
	return r.loadPool(db, poolID)
}

func (r *DefaultLedgerRepository) FindUndistributedPayouts(ctx context.Context, limit int) ([]*domain.Pool, error) {
	var poolModels []models.PoolModel
	query := paginate(r.DB.WithContext(ctx).
		Where("distributed = ? AND payout_tx_id IS NOT NULL", false).
		Order("id ASC"), limit, 0)
	if err := query.Find(&poolModels).Error; err != nil {
		return nil, err
	}
	pools := make([]*domain.Pool, 0, len(poolModels))
	for i := range poolModels {
		pools = append(pools, mappers.ToDomainPool(&poolModels[i]))
	}
	return pools, nil
}

// settleCapture runs a capture transition in one database transaction and
// reports Applied=false when the capture was already terminal.
func (r *DefaultLedgerRepository) settleCapture(ctx context.Context, txID string, apply func(tx *gorm.DB, gatewayTx *models.GatewayTransactionModel) error) (*domain.SettlementResult, error) {
	db := r.DB.WithContext(ctx)
	applied := false

	err := db.Transaction(func(tx *gorm.DB) error {
		var gatewayTx models.GatewayTransactionModel
		if err := tx.Where("id = ?", txID).First(&gatewayTx).Error; err != nil {
			return notFound(err, "transaction %s", txID)
		}
		if gatewayTx.Type != domain.TransactionCapture {
			return fmt.Errorf("%w: transaction %s is not a capture", domain.ErrValidation, txID)
		}
		if gatewayTx.Status.IsTerminal() {
			return nil
		}

		err := apply(tx, &gatewayTx)
		if errors.Is(err, errAlreadySettled) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	gatewayTx, err := r.loadTransaction(db, txID)
	if err != nil {
		return nil, err
	}
	contribution, err := r.loadContributionByTx(db, txID)
	if err != nil {
		return nil, err
	}
	pool, err := r.loadPool(db, gatewayTx.PoolID)
	if err != nil {
		return nil, err
	}
	return &domain.SettlementResult{
		Transaction:  gatewayTx,
		Contribution: contribution,
		Pool:         pool,
		Applied:      applied,
	}, nil
}

var errAlreadySettled = errors.New("capture already settled")

func (r *DefaultLedgerRepository) transitionCapture(tx *gorm.DB, txID string, updates map[string]interface{}) error {
	res := tx.Model(&models.GatewayTransactionModel{}).
		Where("id = ? AND status IN ?", txID, pendingCaptureStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errAlreadySettled
	}
	return nil
}

func (r *DefaultLedgerRepository) transitionContribution(tx *gorm.DB, txID string, updates map[string]interface{}) (*domain.Contribution, error) {
	res := tx.Model(&models.ContributionModel{}).
		Where("transaction_id = ? AND status = ?", txID, domain.ContributionPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("contribution for transaction %s is not pending: %w", txID, domain.ErrLedgerConflict)
	}
	return r.loadContributionByTx(tx, txID)
}

func (r *DefaultLedgerRepository) reservationConflict(tx *gorm.DB, poolID string) error {
	pool, err := r.loadPool(tx, poolID)
	if err != nil {
		return err
	}
	switch {
	case pool.Distributed:
		return fmt.Errorf("pool %s: %w", poolID, domain.ErrAlreadyDistributed)
	case pool.Status != domain.PoolStatusClosed:
		return fmt.Errorf("pool %s: %w", poolID, domain.ErrPoolOpen)
	default:
		return fmt.Errorf("pool %s already has a payout reserved: %w", poolID, domain.ErrAlreadyDistributed)
	}
}

func (r *DefaultLedgerRepository) loadPool(db *gorm.DB, poolID string) (*domain.Pool, error) {
	var model models.PoolModel
	if err := db.Where("id = ?", poolID).First(&model).Error; err != nil {
		return nil, notFound(err, "pool %s", poolID)
	}
	return mappers.ToDomainPool(&model), nil
}

func (r *DefaultLedgerRepository) loadTransaction(db *gorm.DB, txID string) (*domain.GatewayTransaction, error) {
	var model models.GatewayTransactionModel
	if err := db.Where("id = ?", txID).First(&model).Error; err != nil {
		return nil, notFound(err, "transaction %s", txID)
	}
	return mappers.ToDomainTransaction(&model), nil
}

func (r *DefaultLedgerRepository) loadContributionByTx(db *gorm.DB, txID string) (*domain.Contribution, error) {
	var model models.ContributionModel
	if err := db.Where("transaction_id = ?", txID).First(&model).Error; err != nil {
		return nil, notFound(err, "contribution for transaction %s", txID)
	}
	return mappers.ToDomainContribution(&model), nil
}

func toDomainTransactions(txModels []models.GatewayTransactionModel) []*domain.GatewayTransaction {
	out := make([]*domain.GatewayTransaction, 0, len(txModels))
	for i := range txModels {
		out = append(out, mappers.ToDomainTransaction(&txModels[i]))
	}
	return out
}

func paginate(db *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	return db
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return err
}

func conflict(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrLedgerConflict)...)
	}
	return err
}
