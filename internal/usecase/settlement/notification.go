package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

// HandleGatewayNotification applies an asynchronous provider event. Events for
// unknown or already settled transactions are acknowledged without changes, so
// redelivery is harmless.
func (uc *DefaultSettlementUsecase) HandleGatewayNotification(ctx context.Context, n *domain.GatewayNotification) (domain.NotificationOutcome, error) {
	const op = "handle_notification"

	if n == nil || (n.Type != "" && n.ExternalID == "") {
		return "", uc.fail(op, fmt.Errorf("%w: missing transaction id", domain.ErrInvalidNotification))
	}
	if n.Type == "" {
		return domain.NotificationIgnored, nil
	}

	tx, err := uc.ledger.GetTransactionByExternalID(ctx, n.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		uc.logger.Info("notification for unknown transaction", "event_type", n.EventType, "external_id", n.ExternalID)
		return domain.NotificationIgnored, nil
	}
	if err != nil {
		return "", uc.fail(op, err)
	}
	if tx.Type != n.Type {
		return domain.NotificationIgnored, nil
	}
	if tx.Status.IsTerminal() {
		return domain.NotificationDuplicate, nil
	}

	var outcome domain.NotificationOutcome
	switch tx.Type {
	case domain.TransactionCapture:
		outcome, err = uc.applyCaptureNotification(ctx, tx, n)
	case domain.TransactionPayout:
		outcome, err = uc.applyPayoutNotification(ctx, tx, n)
	default:
		outcome = domain.NotificationIgnored
	}
	if err != nil {
		return "", uc.fail(op, err)
	}
	return outcome, nil
}

func (uc *DefaultSettlementUsecase) applyCaptureNotification(ctx context.Context, tx *domain.GatewayTransaction, n *domain.GatewayNotification) (domain.NotificationOutcome, error) {
	switch n.Status {
	case domain.TxStatusCompleted, domain.TxStatusFailed, domain.TxStatusCancelled:
		uc.archive(ctx, tx, "notification", n.Status, n.Raw)
		result, err := uc.applyCaptureStatus(ctx, tx, n.Status, n.Raw, "")
		if err != nil {
			return "", err
		}
		if result.Applied {
			return domain.NotificationApplied, nil
		}
		return domain.NotificationDuplicate, nil

	case domain.TxStatusPending:
		// плательщик подтвердил заказ, списываем так же, как при confirm
		result, err := uc.capture(ctx, tx)
		switch {
		case errors.Is(err, domain.ErrGatewayRejected), errors.Is(err, domain.ErrPoolClosed):
			return domain.NotificationApplied, nil
		case err != nil:
			return "", err
		case result.Applied:
			return domain.NotificationApplied, nil
		}
		return domain.NotificationDuplicate, nil
	}
	return domain.NotificationIgnored, nil
}

func (uc *DefaultSettlementUsecase) applyPayoutNotification(ctx context.Context, tx *domain.GatewayTransaction, n *domain.GatewayNotification) (domain.NotificationOutcome, error) {
	if !n.Status.IsTerminal() {
		return domain.NotificationIgnored, nil
	}
	_, applied, err := uc.applyPayoutStatus(ctx, tx, n.Status, n.Raw)
	if err != nil {
		return "", err
	}
	if applied {
		return domain.NotificationApplied, nil
	}
	return domain.NotificationDuplicate, nil
}
