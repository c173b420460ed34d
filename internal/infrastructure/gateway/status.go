package gateway

import (
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

// mapOrderStatus converts a checkout order status. APPROVED means the payer
// agreed but nothing was captured yet.
func mapOrderStatus(status string) domain.TransactionStatus {
	switch strings.ToUpper(status) {
	case "APPROVED":
		return domain.TxStatusPending
	case "COMPLETED":
		return domain.TxStatusCompleted
	case "VOIDED":
		return domain.TxStatusCancelled
	default:
		// CREATED, SAVED, PAYER_ACTION_REQUIRED
		return domain.TxStatusCreated
	}
}

func mapPayoutStatus(status string) domain.TransactionStatus {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return domain.TxStatusSuccess
	case "DENIED":
		return domain.TxStatusDenied
	case "CANCELED":
		return domain.TxStatusCanceled
	case "FAILED":
		return domain.TxStatusFailed
	default:
		return domain.TxStatusProcessing
	}
}
