package metrics

import (
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// SettlementMetrics содержит все метрики движка расчётов
type SettlementMetrics struct {
	// Пулы
	PoolsCreatedTotal     *prometheus.CounterVec
	PoolsClosedTotal      *prometheus.CounterVec
	PoolsDistributedTotal *prometheus.CounterVec

	// Взносы
	ContributionsTotal      *prometheus.CounterVec
	ContributionAmountTotal *prometheus.CounterVec

	// Выплаты победителям
	PayoutsTotal      *prometheus.CounterVec
	PayoutAmountTotal *prometheus.CounterVec

	// Платёжный шлюз
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Колбэки
	NotificationsTotal *prometheus.CounterVec

	// Сверка
	ReconcileRunsTotal       *prometheus.CounterVec
	ReconcileDuration        prometheus.Histogram
	ReconcileResolvedTotal   *prometheus.CounterVec
	InvariantViolationsTotal prometheus.Counter

	// Ошибки
	ErrorsTotal *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on reg. Record methods
// are no-ops on a nil *SettlementMetrics.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	factory := promauto.With(reg)

	return &SettlementMetrics{
		PoolsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_pools_created_total",
				Help: "Number of prize pools created",
			},
			[]string{"currency"},
		),
		PoolsClosedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_pools_closed_total",
				Help: "Number of prize pools closed",
			},
			[]string{"currency", "auto"},
		),
		PoolsDistributedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_pools_distributed_total",
				Help: "Number of prize pools flagged as distributed",
			},
			[]string{"currency"},
		),

		ContributionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_contributions_total",
				Help: "Contribution transitions by resulting status",
			},
			[]string{"status", "currency"},
		),
		ContributionAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_contribution_amount_total",
				Help: "Sum of completed contributions",
			},
			[]string{"currency"},
		),

		PayoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_payouts_total",
				Help: "Payout transactions by status",
			},
			[]string{"status", "currency"},
		),
		PayoutAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_payout_amount_total",
				Help: "Sum of payouts the gateway reported as paid",
			},
			[]string{"currency"},
		),

		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_gateway_requests_total",
				Help: "Payment gateway calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		GatewayRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_gateway_request_duration_seconds",
				Help:    "Payment gateway call latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_notifications_total",
				Help: "Gateway notifications by transport and outcome",
			},
			[]string{"source", "outcome"},
		),

		ReconcileRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_reconcile_runs_total",
				Help: "Reconciliation passes by result",
			},
			[]string{"result"},
		),
		ReconcileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_reconcile_duration_seconds",
				Help:    "Duration of a reconciliation pass",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReconcileResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_reconcile_resolved_total",
				Help: "Entities moved to a new state by reconciliation",
			},
			[]string{"kind", "status"},
		),
		InvariantViolationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_invariant_violations_total",
				Help: "Pools whose total differs from the sum of completed contributions",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_errors_total",
				Help: "Failed settlement operations by error kind",
			},
			[]string{"operation", "kind"},
		),
	}
}

func (m *SettlementMetrics) RecordPoolCreated(currency string) {
	if m == nil {
		return
	}
	m.PoolsCreatedTotal.WithLabelValues(currency).Inc()
}

func (m *SettlementMetrics) RecordPoolClosed(currency string, auto bool) {
	if m == nil {
		return
	}
	label := "false"
	if auto {
		label = "true"
	}
	m.PoolsClosedTotal.WithLabelValues(currency, label).Inc()
}

func (m *SettlementMetrics) RecordPoolDistributed(currency string) {
	if m == nil {
		return
	}
	m.PoolsDistributedTotal.WithLabelValues(currency).Inc()
}

func (m *SettlementMetrics) RecordContribution(status domain.ContributionStatus, currency string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.ContributionsTotal.WithLabelValues(string(status), currency).Inc()
	if status == domain.ContributionCompleted {
		m.ContributionAmountTotal.WithLabelValues(currency).Add(amount.InexactFloat64())
	}
}

func (m *SettlementMetrics) RecordPayout(status domain.TransactionStatus, currency string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.PayoutsTotal.WithLabelValues(string(status), currency).Inc()
	if status == domain.TxStatusSuccess {
		m.PayoutAmountTotal.WithLabelValues(currency).Add(amount.InexactFloat64())
	}
}

func (m *SettlementMetrics) RecordGatewayCall(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(domain.ErrorKind(err))
	}
	m.GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *SettlementMetrics) RecordNotification(source string, outcome domain.NotificationOutcome) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(source, string(outcome)).Inc()
}

func (m *SettlementMetrics) RecordReconcileRun(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReconcileRunsTotal.WithLabelValues(result).Inc()
	m.ReconcileDuration.Observe(duration.Seconds())
}

func (m *SettlementMetrics) RecordReconcileResolved(kind domain.TransactionType, status domain.TransactionStatus) {
	if m == nil {
		return
	}
	m.ReconcileResolvedTotal.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *SettlementMetrics) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.InvariantViolationsTotal.Inc()
}

func (m *SettlementMetrics) RecordError(operation string, err error) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation, string(domain.ErrorKind(err))).Inc()
}
