package settlement

import (
	"context"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

const sideEffectTimeout = 10 * time.Second

func (uc *DefaultSettlementUsecase) publish(ctx context.Context, entity domain.EntityType, entityID, poolID, status string) {
	if uc.events == nil {
		return
	}
	event := domain.SettlementEvent{
		EntityType: entity,
		EntityID:   entityID,
		PoolID:     poolID,
		NewStatus:  status,
		OccurredAt: uc.now(),
	}
	go func(ctx context.Context, event domain.SettlementEvent) {
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if err := uc.events.PublishSettlementEvent(ctx, event); err != nil {
			uc.logger.Error("failed to publish settlement event",
				"entity", string(event.EntityType), "entity_id", event.EntityID, "error", err.Error())
		}
	}(context.WithoutCancel(ctx), event)
}

func (uc *DefaultSettlementUsecase) publishCapture(ctx context.Context, result *domain.SettlementResult) {
	if result == nil || !result.Applied {
		return
	}
	c := result.Contribution
	uc.publish(ctx, domain.EntityContribution, c.ID, c.PoolID, string(c.Status))
	uc.publish(ctx, domain.EntityTransaction, result.Transaction.ID, c.PoolID, string(result.Transaction.Status))
	uc.metrics.RecordContribution(c.Status, c.Currency, c.Amount)
}

// archive keeps a copy of a raw gateway response. Failures are only logged.
func (uc *DefaultSettlementUsecase) archive(ctx context.Context, tx *domain.GatewayTransaction, operation string, status domain.TransactionStatus, raw []byte) {
	if uc.archiver == nil || len(raw) == 0 || tx == nil {
		return
	}
	record := domain.AuditRecord{
		TransactionID: tx.ID,
		ExternalID:    tx.ExternalID,
		PoolID:        tx.PoolID,
		Operation:     operation,
		Status:        status,
		Raw:           append([]byte(nil), raw...),
		RecordedAt:    uc.now(),
	}
	go func(ctx context.Context, record domain.AuditRecord) {
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if err := uc.archiver.Archive(ctx, record); err != nil {
			uc.logger.Error("failed to archive gateway response",
				"transaction_id", record.TransactionID, "operation", record.Operation, "error", err.Error())
		}
	}(context.WithoutCancel(ctx), record)
}
