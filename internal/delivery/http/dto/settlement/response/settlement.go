package response

import (
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type PoolResponse struct {
	ID                  string     `json:"id"`
	TournamentID        string     `json:"tournament_id"`
	TotalAmount         string     `json:"total_amount"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	WinnerUserID        *string    `json:"winner_user_id,omitempty"`
	Distributed         bool       `json:"distributed"`
	PayoutTransactionID *string    `json:"payout_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	DistributedAt       *time.Time `json:"distributed_at,omitempty"`
}

type ContributionResponse struct {
	ID            string     `json:"id"`
	PoolID        string     `json:"pool_id"`
	UserID        string     `json:"user_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type TransactionResponse struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	PoolID      string     `json:"pool_id"`
	UserID      string     `json:"user_id"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type InitiateContributionResponse struct {
	Contribution ContributionResponse `json:"contribution"`
	OrderID      string               `json:"order_id"`
	ApproveURL   string               `json:"approve_url"`
}

type ConfirmContributionResponse struct {
	Applied      bool                  `json:"applied"`
	Contribution *ContributionResponse `json:"contribution,omitempty"`
	Transaction  *TransactionResponse  `json:"transaction,omitempty"`
	Pool         *PoolResponse         `json:"pool,omitempty"`
}

type DistributePrizeResponse struct {
	Pool   PoolResponse        `json:"pool"`
	Payout TransactionResponse `json:"payout"`
}

type PoolListResponse struct {
	Pools      []PoolResponse `json:"pools"`
	Pagination Pagination     `json:"pagination"`
}

type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
}

func FromPool(p *domain.Pool) PoolResponse {
	return PoolResponse{
		ID:                  p.ID,
		TournamentID:        p.TournamentID,
		TotalAmount:         domain.FormatAmount(p.TotalAmount, p.Currency),
		Currency:            p.Currency,
		Status:              string(p.Status),
		WinnerUserID:        p.WinnerUserID,
		Distributed:         p.Distributed,
		PayoutTransactionID: p.PayoutTxID,
		CreatedAt:           p.CreatedAt,
		ClosedAt:            p.ClosedAt,
		DistributedAt:       p.DistributedAt,
	}
}

func FromContribution(c *domain.Contribution) ContributionResponse {
	return ContributionResponse{
		ID:            c.ID,
		PoolID:        c.PoolID,
		UserID:        c.UserID,
		Amount:        domain.FormatAmount(c.Amount, c.Currency),
		Currency:      c.Currency,
		Status:        string(c.Status),
		TransactionID: c.TransactionID,
		FailureReason: c.FailureReason,
		CreatedAt:     c.CreatedAt,
		CompletedAt:   c.CompletedAt,
	}
}

func FromTransaction(t *domain.GatewayTransaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		ExternalID:  t.ExternalID,
		PoolID:      t.PoolID,
		UserID:      t.UserID,
		Amount:      domain.FormatAmount(t.Amount, t.Currency),
		Currency:    t.Currency,
		Type:        string(t.Type),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func FromSettlementResult(r *domain.SettlementResult) ConfirmContributionResponse {
	resp := ConfirmContributionResponse{Applied: r.Applied}
	if r.Contribution != nil {
		c := FromContribution(r.Contribution)
		resp.Contribution = &c
	}
	if r.Transaction != nil {
		t := FromTransaction(r.Transaction)
		resp.Transaction = &t
	}
	if r.Pool != nil {
		p := FromPool(r.Pool)
		resp.Pool = &p
	}
	return resp
}
