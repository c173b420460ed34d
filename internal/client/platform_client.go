package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type tournamentResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type payoutAccountResponse struct {
	UserID        string `json:"user_id"`
	RecipientType string `json:"recipient_type"`
	Receiver      string `json:"receiver"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PlatformClient reads tournaments and payout accounts from the platform's
// CRUD service. It implements domain.TournamentDirectory and domain.UserDirectory.
type PlatformClient struct {
	Address string
	token   string
	client  *http.Client
}

func NewPlatformClient(address, token string, timeout time.Duration) *PlatformClient {
	return &PlatformClient{
		Address: strings.TrimRight(address, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *PlatformClient) GetTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	var resp tournamentResponse
	if err := c.get(ctx, "/tournaments/"+url.PathEscape(tournamentID), &resp); err != nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, err)
	}
	return &domain.Tournament{
		ID:     resp.ID,
		Name:   resp.Name,
		Status: resp.Status,
	}, nil
}

func (c *PlatformClient) GetPayoutAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	var resp payoutAccountResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/payout-account", &resp); err != nil {
		return nil, fmt.Errorf("payout account of %s: %w", userID, err)
	}
	if resp.Receiver == "" {
		return nil, fmt.Errorf("payout account of %s: %w: empty receiver", userID, domain.ErrValidation)
	}
	if resp.UserID == "" {
		resp.UserID = userID
	}
	return &domain.PayoutAccount{
		UserID:        resp.UserID,
		RecipientType: resp.RecipientType,
		Receiver:      resp.Receiver,
	}, nil
}

func (c *PlatformClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Address+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	responseBodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return json.Unmarshal(responseBodyBytes, out)
	}
	if response.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	var errResp errorResponse
	if err := json.Unmarshal(responseBodyBytes, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("platform service returned status %d", response.StatusCode)
	}
	return errors.New(errResp.Error)
}
