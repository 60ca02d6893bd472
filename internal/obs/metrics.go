package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"main/internal/schema"
)

// Metrics exposes execution core counters in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	ordersSubmitted *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	fills           *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	throttleLatched prometheus.Gauge
	liveOrders      prometheus.Gauge
	auditDrops      prometheus.Gauge
	netPosition     *prometheus.GaugeVec
	totalPnL        *prometheus.GaugeVec
	requestLatency  prometheus.Histogram
}

// NewMetrics builds and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exec_orders_submitted_total",
				Help: "Order requests accepted by the core, by action.",
			},
			[]string{"action", "side"},
		),
		ordersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exec_orders_rejected_total",
				Help: "Order requests rejected, by gate.",
			},
			[]string{"gate"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exec_fills_total",
				Help: "Executions processed, by fill type.",
			},
			[]string{"type"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exec_alerts_total",
				Help: "Operator alerts raised, by alert type.",
			},
			[]string{"type"},
		),
		throttleLatched: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exec_throttle_latched",
				Help: "1 while the message throttle is latched.",
			},
		),
		liveOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exec_live_orders",
				Help: "Orders currently tracked in a non-terminal state.",
			},
		),
		auditDrops: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exec_audit_drops_total",
				Help: "Audit events lost to queue overflow.",
			},
		),
		netPosition: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exec_net_position",
				Help: "Net position in scaled quantity units.",
			},
			[]string{"instrument"},
		),
		totalPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exec_total_pnl",
				Help: "Total PnL in scaled notional units, by level.",
			},
			[]string{"level"},
		),
		requestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exec_request_latency_seconds",
				Help:    "Core request handling latency.",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
		),
	}
	m.registry.MustRegister(
		m.ordersSubmitted,
		m.ordersRejected,
		m.fills,
		m.alerts,
		m.throttleLatched,
		m.liveOrders,
		m.auditDrops,
		m.netPosition,
		m.totalPnL,
		m.requestLatency,
	)
	return m
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrderSubmitted counts an accepted order action.
func (m *Metrics) OrderSubmitted(action string, side schema.OrderSide) {
	m.ordersSubmitted.WithLabelValues(action, side.String()).Inc()
}

// OrderRejected counts a rejected order action by the gate that fired.
func (m *Metrics) OrderRejected(subtype schema.RejectSubtype) {
	m.ordersRejected.WithLabelValues(subtype.String()).Inc()
}

// FillProcessed counts a processed execution.
func (m *Metrics) FillProcessed(fillType schema.FillType) {
	m.fills.WithLabelValues(fillType.String()).Inc()
}

// AlertRaised counts an operator alert.
func (m *Metrics) AlertRaised(alertType schema.AlertType) {
	m.alerts.WithLabelValues(alertType.String()).Inc()
}

// SetThrottleLatched reflects the latch state.
func (m *Metrics) SetThrottleLatched(latched bool) {
	if latched {
		m.throttleLatched.Set(1)
		return
	}
	m.throttleLatched.Set(0)
}

// SetLiveOrders reflects the order table occupancy.
func (m *Metrics) SetLiveOrders(n int) {
	m.liveOrders.Set(float64(n))
}

// SetAuditDrops reflects the audit queue overflow counter.
func (m *Metrics) SetAuditDrops(n uint64) {
	m.auditDrops.Set(float64(n))
}

// SetNetPosition reflects the net position of one instrument.
func (m *Metrics) SetNetPosition(instrument string, qty schema.Quantity) {
	m.netPosition.WithLabelValues(instrument).Set(float64(qty))
}

// SetTotalPnL reflects a PnL level total.
func (m *Metrics) SetTotalPnL(level string, pnl schema.Notional) {
	m.totalPnL.WithLabelValues(level).Set(float64(pnl))
}

// ObserveRequest records one core request latency sample in seconds.
func (m *Metrics) ObserveRequest(seconds float64) {
	m.requestLatency.Observe(seconds)
}
