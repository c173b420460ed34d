package request

type CreatePoolRequest struct {
	TournamentID string `json:"tournament_id"`
	Currency     string `json:"currency"`
}

type ClosePoolRequest struct {
	// Необязателен: победителя можно передать позже при распределении
	WinnerUserID *string `json:"winner_user_id"`
}

type DistributePrizeRequest struct {
	WinnerUserID string `json:"winner_user_id"`
}
