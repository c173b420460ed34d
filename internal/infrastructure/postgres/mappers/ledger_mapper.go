package mappers

import (
	"encoding/json"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres/models"
	"gorm.io/datatypes"
)

func ToDomainPool(model *models.PoolModel) *domain.Pool {
	return &domain.Pool{
		ID:            model.ID,
		TournamentID:  model.TournamentID,
		TotalAmount:   model.TotalAmount,
		Currency:      model.Currency,
		Status:        model.Status,
		WinnerUserID:  model.WinnerUserID,
		Distributed:   model.Distributed,
		PayoutTxID:    model.PayoutTxID,
		CreatedAt:     model.CreatedAt,
		ClosedAt:      model.ClosedAt,
		DistributedAt: model.DistributedAt,
	}
}

func ToGORMPool(pool *domain.Pool) *models.PoolModel {
	return &models.PoolModel{
		ID:            pool.ID,
		TournamentID:  pool.TournamentID,
		TotalAmount:   pool.TotalAmount,
		Currency:      pool.Currency,
		Status:        pool.Status,
		WinnerUserID:  pool.WinnerUserID,
		Distributed:   pool.Distributed,
		PayoutTxID:    pool.PayoutTxID,
		CreatedAt:     pool.CreatedAt,
		UpdatedAt:     pool.CreatedAt,
		ClosedAt:      pool.ClosedAt,
		DistributedAt: pool.DistributedAt,
	}
}

func ToDomainContribution(model *models.ContributionModel) *domain.Contribution {
	return &domain.Contribution{
		ID:            model.ID,
		PoolID:        model.PoolID,
		UserID:        model.UserID,
		Amount:        model.Amount,
		Currency:      model.Currency,
		Status:        model.Status,
		TransactionID: model.TransactionID,
		FailureReason: model.FailureReason,
		CreatedAt:     model.CreatedAt,
		CompletedAt:   model.CompletedAt,
	}
}

func ToGORMContribution(c *domain.Contribution) *models.ContributionModel {
	return &models.ContributionModel{
		ID:            c.ID,
		PoolID:        c.PoolID,
		UserID:        c.UserID,
		Amount:        c.Amount,
		Currency:      c.Currency,
		Status:        c.Status,
		TransactionID: c.TransactionID,
		FailureReason: c.FailureReason,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.CreatedAt,
		CompletedAt:   c.CompletedAt,
	}
}

func ToDomainTransaction(model *models.GatewayTransactionModel) *domain.GatewayTransaction {
	tx := &domain.GatewayTransaction{
		ID:             model.ID,
		PoolID:         model.PoolID,
		UserID:         model.UserID,
		Amount:         model.Amount,
		Currency:       model.Currency,
		Type:           model.Type,
		Status:         model.Status,
		IdempotencyKey: model.IdempotencyKey,
		ApproveURL:     model.ApproveURL,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		CompletedAt:    model.CompletedAt,
	}
	if model.ExternalID != nil {
		tx.ExternalID = *model.ExternalID
	}
	if len(model.RawResponse) > 0 {
		tx.RawResponse = []byte(model.RawResponse)
	}
	return tx
}

func ToGORMTransaction(tx *domain.GatewayTransaction) *models.GatewayTransactionModel {
	model := &models.GatewayTransactionModel{
		ID:             tx.ID,
		PoolID:         tx.PoolID,
		UserID:         tx.UserID,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Type:           tx.Type,
		Status:         tx.Status,
		IdempotencyKey: tx.IdempotencyKey,
		ApproveURL:     tx.ApproveURL,
		RawResponse:    ToJSON(tx.RawResponse),
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
		CompletedAt:    tx.CompletedAt,
	}
	if tx.ExternalID != "" {
		ext := tx.ExternalID
		model.ExternalID = &ext
	}
	return model
}

// ToJSON keeps provider payloads storable in a jsonb column even when the
// provider answered with something that is not JSON.
func ToJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}
