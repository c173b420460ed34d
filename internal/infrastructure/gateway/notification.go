package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

const SignatureHeader = "X-Gateway-Signature"

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

type webhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type webhookResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

// ParseNotification decodes a provider webhook. Event types the settlement
// flow does not care about come back with an empty Type.
func ParseNotification(body []byte) (*domain.GatewayNotification, error) {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidNotification, err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", domain.ErrInvalidNotification)
	}

	var resource webhookResource
	if len(event.Resource) > 0 {
		if err := json.Unmarshal(event.Resource, &resource); err != nil {
			return nil, fmt.Errorf("%w: resource: %v", domain.ErrInvalidNotification, err)
		}
	}

	n := &domain.GatewayNotification{
		EventID:   event.ID,
		EventType: event.EventType,
		Raw:       body,
	}

	eventType := strings.ToUpper(event.EventType)
	switch {
	case strings.HasPrefix(eventType, "CHECKOUT.ORDER."):
		n.Type = domain.TransactionCapture
		n.ExternalID = resource.ID
		n.Status = mapOrderStatus(resource.Status)
		if eventType == "CHECKOUT.ORDER.VOIDED" {
			n.Status = domain.TxStatusCancelled
		}
	case strings.HasPrefix(eventType, "PAYMENT.CAPTURE."):
		n.Type = domain.TransactionCapture
		n.ExternalID = resource.SupplementaryData.RelatedIDs.OrderID
		switch eventType {
		case "PAYMENT.CAPTURE.COMPLETED":
			n.Status = domain.TxStatusCompleted
		case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
			n.Status = domain.TxStatusFailed
		default:
			n.Status = domain.TxStatusPending
		}
	case strings.HasPrefix(eventType, "PAYMENT.PAYOUTSBATCH."):
		n.Type = domain.TransactionPayout
		n.ExternalID = resource.BatchHeader.PayoutBatchID
		n.Status = mapPayoutStatus(resource.BatchHeader.BatchStatus)
	default:
		return n, nil
	}

	if n.ExternalID == "" {
		return nil, fmt.Errorf("%w: %s without a transaction id", domain.ErrInvalidNotification, event.EventType)
	}
	return n, nil
}
