package settlementdto

import "github.com/shopspring/decimal"

type CreatePoolInput struct {
	TournamentID string
	Currency     string
}

type InitiateContributionInput struct {
	PoolID   string
	UserID   string
	Amount   decimal.Decimal
	Currency string
}

type ListPoolsInput struct {
	Page  int
	Limit int
}

type ListUserTransactionsInput struct {
	UserID string
	Page   int
	Limit  int
}
