package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	ReturnURL    string
	CancelURL    string
}

// Client talks to a PayPal-compatible REST API. It never persists anything.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With("component", "gateway"),
	}
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	Issue      string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("gateway responded %d", e.StatusCode)
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Issue != "" {
		msg += " (" + e.Issue + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.retryable() {
		return domain.ErrGatewayUnavailable
	}
	return domain.ErrGatewayRejected
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusUnauthorized
}

type apiErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Name = parsed.Name
		if apiErr.Name == "" {
			apiErr.Name = parsed.Error
		}
		apiErr.Message = parsed.Message
		if len(parsed.Details) > 0 {
			apiErr.Issue = parsed.Details[0].Issue
		}
	}
	return apiErr
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("token request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		// bad credentials are an operator problem, not a declined payment
		return "", fmt.Errorf("token request failed with %d: %w", resp.StatusCode, domain.ErrGatewayUnavailable)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("malformed token response: %w", domain.ErrGatewayUnavailable)
	}

	c.accessToken = tr.AccessToken
	// refresh a minute early
	lifetime := time.Duration(tr.ExpiresIn)*time.Second - time.Minute
	if lifetime < 0 {
		lifetime = 0
	}
	c.tokenExpiry = time.Now().Add(lifetime)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// do sends one API call. Reads are retried on transient failures; writes only
// when the connection was never established, so a request is never sent twice
// with an unknown outcome.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}

	refreshed := false
	for attempt := 1; ; attempt++ {
		respBody, err := c.doOnce(ctx, method, path, idempotencyKey, payload)
		if err == nil {
			return respBody, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && !refreshed {
			c.invalidateToken()
			refreshed = true
			attempt--
			continue
		}

		if attempt >= c.cfg.MaxAttempts || !c.shouldRetry(ctx, method, err) {
			return nil, err
		}

		c.logger.Warn("gateway call failed, retrying",
			"method", method, "path", path, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, transportError(method+" "+path, ctx.Err())
		case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path, idempotencyKey string, payload []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if idempotencyKey != "" {
		req.Header.Set("PayPal-Request-Id", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(method+" "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) shouldRetry(ctx context.Context, method string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return method == http.MethodGet && apiErr.retryable()
	}
	if method == http.MethodGet {
		return errors.Is(err, domain.ErrGatewayUnavailable)
	}
	return isDialError(err)
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrGatewayUnavailable, err)
}
