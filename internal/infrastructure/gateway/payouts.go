package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id,omitempty"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
}

type createPayoutRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type payoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

// CreatePayout sends the whole amount to one receiver. The idempotency key
// doubles as the sender batch id so a resubmission cannot pay twice.
func (c *Client) CreatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	recipientType := req.Receiver.RecipientType
	if recipientType == "" {
		recipientType = "PAYPAL_ID"
	}
	body := createPayoutRequest{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: req.IdempotencyKey,
			EmailSubject:  "You have a prize payout",
		},
		Items: []payoutItem{{
			RecipientType: recipientType,
			Amount: payoutAmount{
				Value:    domain.FormatAmount(req.Amount, req.Currency),
				Currency: req.Currency,
			},
			Receiver:     req.Receiver.Receiver,
			Note:         req.Note,
			SenderItemID: req.Reference,
		}},
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/payments/payouts", req.IdempotencyKey, body)
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}
	return parsePayout(raw)
}

func (c *Client) GetPayoutStatus(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(externalID), "", nil)
	if err != nil {
		return nil, fmt.Errorf("get payout %s: %w", externalID, err)
	}
	return parsePayout(raw)
}

func parsePayout(raw []byte) (*domain.GatewayResult, error) {
	var resp payoutResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.BatchHeader.PayoutBatchID == "" {
		return nil, fmt.Errorf("malformed payout response: %w", domain.ErrGatewayUnavailable)
	}
	return &domain.GatewayResult{
		ExternalID: resp.BatchHeader.PayoutBatchID,
		Status:     mapPayoutStatus(resp.BatchHeader.BatchStatus),
		Raw:        raw,
	}, nil
}
