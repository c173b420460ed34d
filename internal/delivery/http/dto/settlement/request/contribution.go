package request

import "github.com/shopspring/decimal"

type InitiateContributionRequest struct {
	UserID string `json:"user_id"`
	// Принимает и строку "25.00", и число 25
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type ConfirmContributionRequest struct {
	OrderID string `json:"order_id"`
}
