package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/gateway"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/memory"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "service-token"
	testSecret = "whsec"
)

type stubGateway struct {
	mu         sync.Mutex
	seq        int
	captureErr error
}

func (g *stubGateway) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func (g *stubGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.GatewayResult, error) {
	id := g.next("ORDER")
	return &domain.GatewayResult{ExternalID: id, Status: domain.TxStatusCreated, ApproveURL: "https://pay.example.com/approve/" + id}, nil
}

func (g *stubGateway) CaptureOrder(ctx context.Context, externalID, idempotencyKey string) (*domain.GatewayResult, error) {
	g.mu.Lock()
	err := g.captureErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{ExternalID: externalID, Status: domain.TxStatusCompleted}, nil
}

func (g *stubGateway) GetOrder(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	return &domain.GatewayResult{ExternalID: externalID, Status: domain.TxStatusCreated}, nil
}

func (g *stubGateway) CreatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	return &domain.GatewayResult{ExternalID: g.next("BATCH"), Status: domain.TxStatusProcessing}, nil
}

func (g *stubGateway) GetPayoutStatus(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	return &domain.GatewayResult{ExternalID: externalID, Status: domain.TxStatusSuccess}, nil
}

type testServer struct {
	app     *fiber.App
	gateway *stubGateway
	metrics *metrics.SettlementMetrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewSettlementMetrics(reg)
	gw := &stubGateway{}
	uc, err := settlement.NewDefaultSettlementUsecase(memory.NewLedgerStore(), gw, nil, nil, nil, nil, m, settlement.Options{})
	require.NoError(t, err)

	app := NewRouter(RouterConfig{
		Settlement:   NewSettlementHandler(uc),
		Webhook:      NewWebhookHandler(uc, testSecret, m),
		ServiceToken: testToken,
		Gatherer:     reg,
	})
	return &testServer{app: app, gateway: gw, metrics: m}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Outcome string          `json:"outcome"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type poolView struct {
	ID          string `json:"id"`
	TotalAmount string `json:"total_amount"`
	Status      string `json:"status"`
	Distributed bool   `json:"distributed"`
}

type initiateView struct {
	Contribution struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"contribution"`
	OrderID    string `json:"order_id"`
	ApproveURL string `json:"approve_url"`
}

func (s *testServer) openPool(t *testing.T, tournamentID string) poolView {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/pools", map[string]string{"tournament_id": tournamentID, "currency": "usd"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	return decode[poolView](t, env)
}

func (s *testServer) contribute(t *testing.T, poolID, userID, amount string) initiateView {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		map[string]string{"user_id": userID, "amount": amount, "currency": "USD"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	return decode[initiateView](t, env)
}

func TestSettlementFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	pool := s.openPool(t, "T1")
	assert.Equal(t, "0.00", pool.TotalAmount)
	assert.Equal(t, "COLLECTING", pool.Status)

	first := s.contribute(t, pool.ID, "U1", "10.00")
	second := s.contribute(t, pool.ID, "U2", "15")
	assert.Equal(t, "PENDING", first.Contribution.Status)
	assert.NotEmpty(t, first.ApproveURL)

	for _, order := range []string{first.OrderID, second.OrderID} {
		status, env := s.do(t, http.MethodPost, "/api/v1/contributions/confirm", map[string]string{"order_id": order})
		require.Equal(t, http.StatusOK, status, env.Error)
	}

	status, env := s.do(t, http.MethodGet, "/api/v1/tournaments/T1/pool", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "25.00", decode[poolView](t, env).TotalAmount)

	status, env = s.do(t, http.MethodPost, "/api/v1/pools/"+pool.ID+"/close", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, "CLOSED", decode[poolView](t, env).Status)

	status, env = s.do(t, http.MethodPost, "/api/v1/pools/"+pool.ID+"/distribute", map[string]string{"winner_user_id": "U2"})
	require.Equal(t, http.StatusOK, status, env.Error)
	distributed := decode[struct {
		Pool   poolView `json:"pool"`
		Payout struct {
			ID         string `json:"id"`
			ExternalID string `json:"external_id"`
			Amount     string `json:"amount"`
			Status     string `json:"status"`
		} `json:"payout"`
	}](t, env)
	assert.True(t, distributed.Pool.Distributed)
	assert.Equal(t, "25.00", distributed.Payout.Amount)
	assert.Equal(t, "PROCESSING", distributed.Payout.Status)

	status, env = s.do(t, http.MethodPost, "/api/v1/pools/"+pool.ID+"/distribute", map[string]string{"winner_user_id": "U2"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/payouts/"+distributed.Payout.ExternalID+"/refresh", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, "SUCCESS", decode[struct {
		Status string `json:"status"`
	}](t, env).Status)

	status, env = s.do(t, http.MethodGet, "/api/v1/users/U2/transactions?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	listed := decode[struct {
		Transactions []struct {
			Type string `json:"type"`
		} `json:"transactions"`
		Pagination struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
		} `json:"pagination"`
	}](t, env)
	assert.Len(t, listed.Transactions, 2)
	assert.Equal(t, 10, listed.Pagination.Limit)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	pool := s.openPool(t, "T1")

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		prepare    func()
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "unknown pool",
			method:     http.MethodGet,
			path:       "/api/v1/pools/missing",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unsupported currency",
			method:     http.MethodPost,
			path:       "/api/v1/pools",
			body:       map[string]string{"tournament_id": "T2", "currency": "XYZ"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "duplicate pool",
			method:     http.MethodPost,
			path:       "/api/v1/pools",
			body:       map[string]string{"tournament_id": "T1", "currency": "USD"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "non positive amount",
			method:     http.MethodPost,
			path:       "/api/v1/pools/" + pool.ID + "/contributions",
			body:       map[string]string{"user_id": "U1", "amount": "0", "currency": "USD"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "distribute open pool",
			method:     http.MethodPost,
			path:       "/api/v1/pools/" + pool.ID + "/distribute",
			body:       map[string]string{"winner_user_id": "U1"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "declined capture",
			method:     http.MethodPost,
			path:       "/api/v1/contributions/confirm",
			prepare:    func() { s.gateway.captureErr = domain.ErrGatewayRejected },
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "GATEWAY_REJECTED",
			wantError:  "payment declined",
		},
		{
			name:       "gateway down",
			method:     http.MethodPost,
			path:       "/api/v1/contributions/confirm",
			prepare:    func() { s.gateway.captureErr = domain.ErrGatewayTimeout },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "GATEWAY_UNAVAILABLE",
			wantError:  "temporarily unavailable, retry later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if tt.prepare != nil {
				tt.prepare()
				order := s.contribute(t, pool.ID, "U1", "5")
				body = map[string]string{"order_id": order.OrderID}
			}

			status, env := s.do(t, tt.method, tt.path, body)
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, env.Error)
			}
		})
	}
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pools", bytes.NewBufferString(`{"tournament_id":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	status, env := s.send(t, req)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestServiceTokenRequired(t *testing.T) {
	s := newTestServer(t)

	for name, header := range map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/pools", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			status, env := s.send(t, req)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "UNAUTHORIZED", env.Code)
		})
	}
}

func (s *testServer) webhook(t *testing.T, body []byte, signature string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(gateway.SignatureHeader, signature)
	}
	return s.send(t, req)
}

func TestGatewayWebhook(t *testing.T) {
	s := newTestServer(t)
	pool := s.openPool(t, "T1")
	order := s.contribute(t, pool.ID, "U1", "12.50")

	completed := []byte(fmt.Sprintf(
		`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","supplementary_data":{"related_ids":{"order_id":%q}}}}`,
		order.OrderID))

	t.Run("bad signature", func(t *testing.T) {
		status, env := s.webhook(t, completed, gateway.Sign("other", completed))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Code)
	})

	t.Run("unsigned", func(t *testing.T) {
		status, _ := s.webhook(t, completed, "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("malformed", func(t *testing.T) {
		body := []byte(`{"id":"WH-2"`)
		status, env := s.webhook(t, body, gateway.Sign(testSecret, body))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Code)
	})

	status, _ := s.do(t, http.MethodGet, "/api/v1/pools/"+pool.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.webhook(t, completed, gateway.Sign(testSecret, completed))
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, "applied", env.Outcome)

	status, env = s.webhook(t, completed, gateway.Sign(testSecret, completed))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate", env.Outcome)

	unknown := []byte(`{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-404","status":"APPROVED"}}`)
	status, env = s.webhook(t, unknown, gateway.Sign(testSecret, unknown))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ignored", env.Outcome)

	status, env = s.do(t, http.MethodGet, "/api/v1/pools/"+pool.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12.50", decode[poolView](t, env).TotalAmount)

	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.NotificationsTotal.WithLabelValues("http", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.NotificationsTotal.WithLabelValues("http", "applied")))
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.openPool(t, "T1")

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "settlement_pools_created_total")
}

type conflictingUsecase struct {
	settlement.SettlementUsecase
}

func (conflictingUsecase) HandleGatewayNotification(ctx context.Context, n *domain.GatewayNotification) (domain.NotificationOutcome, error) {
	return "", fmt.Errorf("contribution for transaction tx-1 is not pending: %w", domain.ErrLedgerConflict)
}

func TestGatewayWebhookConflictIsAcknowledged(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSettlementMetrics(reg)
	uc := conflictingUsecase{}
	app := NewRouter(RouterConfig{
		Settlement:   NewSettlementHandler(uc),
		Webhook:      NewWebhookHandler(uc, testSecret, m),
		ServiceToken: testToken,
		Gatherer:     reg,
	})
	s := &testServer{app: app, metrics: m}

	body := []byte(`{"id":"WH-9","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-9","status":"COMPLETED","supplementary_data":{"related_ids":{"order_id":"ORDER-9"}}}}`)
	status, env := s.webhook(t, body, gateway.Sign(testSecret, body))
	require.Equal(t, http.StatusOK, status, "conflict must not trigger redelivery")
	assert.True(t, env.Success)
	assert.Equal(t, "duplicate", env.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("http", "duplicate")))
}
