package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/memory"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeGateway behaves like the provider: writes are deduplicated by
// idempotency key and captures of a completed order return the same result.
type fakeGateway struct {
	mu  sync.Mutex
	seq int

	orders      map[string]domain.TransactionStatus
	orderByKey  map[string]string
	payouts     map[string]domain.TransactionStatus
	payoutByKey map[string]string
	receivers   []domain.PayoutAccount

	captureCalls int
	payoutCalls  int

	createOrderErr error
	captureErr     error
	captureStatus  domain.TransactionStatus
	getOrderErr    error
	payoutErr      error
	payoutStatus   domain.TransactionStatus
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:      make(map[string]domain.TransactionStatus),
		orderByKey:  make(map[string]string),
		payouts:     make(map[string]domain.TransactionStatus),
		payoutByKey: make(map[string]string),
	}
}

func raw(id string, status domain.TransactionStatus) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"status":%q}`, id, status))
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.createOrderErr != nil {
		return nil, g.createOrderErr
	}
	id, ok := g.orderByKey[req.IdempotencyKey]
	if !ok {
		g.seq++
		id = fmt.Sprintf("ORDER-%d", g.seq)
		g.orderByKey[req.IdempotencyKey] = id
		g.orders[id] = domain.TxStatusCreated
	}
	return &domain.GatewayResult{
		ExternalID: id,
		Status:     domain.TxStatusCreated,
		ApproveURL: "https://pay.example.com/approve/" + id,
		Raw:        raw(id, domain.TxStatusCreated),
	}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, externalID, idempotencyKey string) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	status, ok := g.orders[externalID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", externalID, domain.ErrGatewayRejected)
	}
	if status != domain.TxStatusCompleted {
		status = domain.TxStatusCompleted
		if g.captureStatus != "" {
			status = g.captureStatus
		}
		g.orders[externalID] = status
	}
	return &domain.GatewayResult{ExternalID: externalID, Status: status, Raw: raw(externalID, status)}, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.getOrderErr != nil {
		return nil, g.getOrderErr
	}
	status, ok := g.orders[externalID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", externalID, domain.ErrGatewayRejected)
	}
	return &domain.GatewayResult{ExternalID: externalID, Status: status, Raw: raw(externalID, status)}, nil
}

func (g *fakeGateway) CreatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.payoutCalls++
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	id, ok := g.payoutByKey[req.IdempotencyKey]
	if !ok {
		g.seq++
		id = fmt.Sprintf("BATCH-%d", g.seq)
		g.payoutByKey[req.IdempotencyKey] = id
		status := domain.TxStatusProcessing
		if g.payoutStatus != "" {
			status = g.payoutStatus
		}
		g.payouts[id] = status
		g.receivers = append(g.receivers, req.Receiver)
	}
	status := g.payouts[id]
	return &domain.GatewayResult{ExternalID: id, Status: status, Raw: raw(id, status)}, nil
}

func (g *fakeGateway) GetPayoutStatus(ctx context.Context, externalID string) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.payouts[externalID]
	if !ok {
		return nil, fmt.Errorf("payout %s: %w", externalID, domain.ErrGatewayRejected)
	}
	return &domain.GatewayResult{ExternalID: externalID, Status: status, Raw: raw(externalID, status)}, nil
}

func (g *fakeGateway) setOrderStatus(id string, status domain.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[id] = status
}

func (g *fakeGateway) setPayoutStatus(id string, status domain.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payouts[id] = status
}

func (g *fakeGateway) distinctPayouts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payouts)
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
}

func (p *recordingPublisher) PublishSettlementEvent(ctx context.Context, event domain.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) has(entity domain.EntityType, entityID, status string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.EntityType == entity && e.EntityID == entityID && e.NewStatus == status {
			return true
		}
	}
	return false
}

type mockTournaments struct {
	mock.Mock
}

func (m *mockTournaments) GetTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	args := m.Called(ctx, tournamentID)
	if t, ok := args.Get(0).(*domain.Tournament); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetPayoutAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	args := m.Called(ctx, userID)
	if a, ok := args.Get(0).(*domain.PayoutAccount); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

type fixture struct {
	uc      *DefaultSettlementUsecase
	ledger  *memory.LedgerStore
	gateway *fakeGateway
	events  *recordingPublisher
	metrics *metrics.SettlementMetrics
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	opts        Options
	tournaments domain.TournamentDirectory
	users       domain.UserDirectory
	ledger      func(*memory.LedgerStore) domain.LedgerRepository
}

func withOptions(fn func(*Options)) fixtureOption {
	return func(c *fixtureConfig) { fn(&c.opts) }
}

func withTournaments(d domain.TournamentDirectory) fixtureOption {
	return func(c *fixtureConfig) { c.tournaments = d }
}

func withUsers(d domain.UserDirectory) fixtureOption {
	return func(c *fixtureConfig) { c.users = d }
}

func withLedger(wrap func(*memory.LedgerStore) domain.LedgerRepository) fixtureOption {
	return func(c *fixtureConfig) { c.ledger = wrap }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		opts: Options{
			PendingThreshold: 15 * time.Minute,
			OrderExpiry:      3 * time.Hour,
			BatchSize:        50,
			AuditInvariant:   true,
		},
	}
	for _, o := range options {
		o(&cfg)
	}

	store := memory.NewLedgerStore()
	var ledger domain.LedgerRepository = store
	if cfg.ledger != nil {
		ledger = cfg.ledger(store)
	}

	f := &fixture{
		ledger:  store,
		gateway: newFakeGateway(),
		events:  &recordingPublisher{},
		metrics: metrics.NewSettlementMetrics(prometheus.NewRegistry()),
	}
	uc, err := NewDefaultSettlementUsecase(ledger, f.gateway, cfg.tournaments, cfg.users, f.events, nil, f.metrics, cfg.opts)
	require.NoError(t, err)
	f.uc = uc
	return f
}
