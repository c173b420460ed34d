package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      money  `json:"amount"`
}

type applicationContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *orderResponse) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o *orderResponse) captureStatus() string {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0].Status
		}
	}
	return ""
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.GatewayResult, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.Reference,
			Description: req.Description,
			Amount: money{
				CurrencyCode: req.Currency,
				Value:        domain.FormatAmount(req.Amount, req.Currency),
			},
		}},
	}
	if c.cfg.ReturnURL != "" || c.cfg.CancelURL != "" {
		body.ApplicationContext = &applicationContext{
			ReturnURL:  c.cfg.ReturnURL,
			CancelURL:  c.cfg.CancelURL,
			UserAction: "CONTINUE",
		}
	}

	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", req.IdempotencyKey, body)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return parseOrder(raw)
}

// CaptureOrder settles an approved order. An order captured earlier is
// reported with its current state instead of an error.
func (c *Client) CaptureOrder(ctx context.Context, externalID, idempotencyKey string) (*domain.GatewayResult, error) {
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(externalID))
	raw, err := c.do(ctx, http.MethodPost, path, idempotencyKey, struct{}{})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Issue == "ORDER_ALREADY_CAPTURED" {
			return c.GetOrder(ctx, externalID)
		}
		return nil, fmt.Errorf("capture order %s: %w", externalID, err)
	}

	resp, err := decodeOrder(raw)
	if err != nil {
		return nil, err
	}
	result := toOrderResult(resp, raw)
	switch resp.captureStatus() {
	case "DECLINED", "FAILED":
		return nil, fmt.Errorf("capture order %s declined: %w", externalID, domain.ErrGatewayRejected)
	case "PENDING":
		result.Status = domain.TxStatusPending
	}
	return result, nil
}

func (c *Client) GetOrder(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(externalID), "", nil)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", externalID, err)
	}
	return parseOrder(raw)
}

func decodeOrder(raw []byte) (*orderResponse, error) {
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		return nil, fmt.Errorf("malformed order response: %w", domain.ErrGatewayUnavailable)
	}
	return &resp, nil
}

func parseOrder(raw []byte) (*domain.GatewayResult, error) {
	resp, err := decodeOrder(raw)
	if err != nil {
		return nil, err
	}
	return toOrderResult(resp, raw), nil
}

func toOrderResult(resp *orderResponse, raw []byte) *domain.GatewayResult {
	return &domain.GatewayResult{
		ExternalID: resp.ID,
		Status:     mapOrderStatus(resp.Status),
		ApproveURL: resp.approveURL(),
		Raw:        raw,
	}
}
