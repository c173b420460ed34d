package settlementdto

import "github.com/LavaJover/shvark-settlement-service/internal/domain"

type InitiateContributionOutput struct {
	Contribution *domain.Contribution
	Transaction  *domain.GatewayTransaction
	// OrderHandle is the provider order id the client approves and later confirms.
	OrderHandle string
	ApproveURL  string
}

type DistributePrizeOutput struct {
	Pool   *domain.Pool
	Payout *domain.GatewayTransaction
}

type ListPoolsOutput struct {
	Pools      []*domain.Pool
	Pagination Pagination
}

type ListUserTransactionsOutput struct {
	Transactions []*domain.GatewayTransaction
	Pagination   Pagination
}

type Pagination struct {
	Page  int
	Limit int
}

// ReconcileReport counts what one reconciliation pass looked at and changed.
type ReconcileReport struct {
	CapturesChecked      int `json:"captures_checked"`
	CapturesResolved     int `json:"captures_resolved"`
	PayoutsChecked       int `json:"payouts_checked"`
	PayoutsResolved      int `json:"payouts_resolved"`
	DistributionsResumed int `json:"distributions_resumed"`
	PoolsAudited         int `json:"pools_audited"`
	InvariantViolations  int `json:"invariant_violations"`
	Failures             int `json:"failures"`
}
