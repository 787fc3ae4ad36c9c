// Package metrics exposes OrbitX's optional daemon metrics surface
// (spec.md §3 DOMAIN STACK: "optional /metrics on the daemon's control
// surface (iteration counts, tool latencies)"), grounded on
// haasonsaas-nexus's internal/observability.Metrics shape (a single struct
// of promauto-registered CounterVec/HistogramVec fields, no
// globally-registered package-level vars).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters, histogram and gauge served at /metrics. In this
// module only AddCost (internal/orbitd) and SetPaneCount (internal/control)
// are called; nothing calls ObserveTool or ObserveIteration, so the
// iteration and tool series stay empty. Nil-safe: a nil *Metrics is a valid
// no-op collector so callers never need to branch on whether metrics are
// enabled.
type Metrics struct {
	Iterations    *prometheus.CounterVec
	ToolLatency   *prometheus.HistogramVec
	ToolInvocations *prometheus.CounterVec
	ExecutionCost *prometheus.CounterVec
	PaneCount     prometheus.Gauge
}

// New registers a fresh Metrics set against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orbitx_react_iterations_total",
			Help: "ReAct executor iterations, labeled by outcome (continue|complete|empty).",
		}, []string{"outcome"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orbitx_tool_duration_seconds",
			Help:    "Tool execution latency in seconds, labeled by tool name and status.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool", "status"}),
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orbitx_tool_invocations_total",
			Help: "Tool invocations, labeled by tool name and status.",
		}, []string{"tool", "status"}),
		ExecutionCost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orbitx_execution_cost_usd_total",
			Help: "Cumulative estimated LLM cost in USD, labeled by session.",
		}, []string{"session"}),
		PaneCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbitx_pane_count",
			Help: "Number of panes currently registered in the mux.",
		}),
	}
}

func (m *Metrics) observeTool(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolLatency.WithLabelValues(tool, status).Observe(seconds)
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
}

// ObserveTool records one tool invocation's latency and outcome.
func (m *Metrics) ObserveTool(tool, status string, seconds float64) {
	m.observeTool(tool, status, seconds)
}

// ObserveIteration records one ReAct iteration's classified outcome.
func (m *Metrics) ObserveIteration(outcome string) {
	if m == nil {
		return
	}
	m.Iterations.WithLabelValues(outcome).Inc()
}

// AddCost accumulates estimated spend for a session.
func (m *Metrics) AddCost(sessionID string, usd float64) {
	if m == nil {
		return
	}
	m.ExecutionCost.WithLabelValues(sessionID).Add(usd)
}

// SetPaneCount reports the mux's current pane count.
func (m *Metrics) SetPaneCount(n int) {
	if m == nil {
		return
	}
	m.PaneCount.Set(float64(n))
}
