package domain

import "context"

type Tournament struct {
	ID     string
	Name   string
	Status string
}

type PayoutAccount struct {
	UserID        string
	RecipientType string
	Receiver      string
}

// TournamentDirectory is a read-only view of the platform's tournaments.
type TournamentDirectory interface {
	GetTournament(ctx context.Context, tournamentID string) (*Tournament, error)
}

// UserDirectory resolves where a winner gets paid.
type UserDirectory interface {
	GetPayoutAccount(ctx context.Context, userID string) (*PayoutAccount, error)
}
