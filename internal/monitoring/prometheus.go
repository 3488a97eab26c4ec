package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_provider_calls_total",
			Help: "Outbound provider calls by outcome",
		},
		[]string{"provider", "status"}, // status: success|error|rate_limited|rejected
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_provider_call_duration_seconds",
			Help:    "Outbound provider call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	BudgetRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "research_provider_budget_remaining",
			Help: "Calls left in today's budget (-1 when unlimited)",
		},
		[]string{"provider"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "research_provider_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"provider"},
	)

	ResearchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Research runs by final status",
		},
		[]string{"status"}, // status: done|partial_failure
	)

	AgentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agent_outcomes_total",
			Help: "Topic agent outcomes",
		},
		[]string{"agent", "status"}, // status: ok|degraded
	)

	FinancialSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_financial_snapshots_total",
			Help: "Financial snapshots served by source",
		},
		[]string{"source"}, // source: provider|mock|synthetic|cache
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ProviderCalls,
			ProviderLatency,
			BudgetRemaining,
			CircuitState,
			ResearchRuns,
			AgentOutcomes,
			FinancialSnapshots,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProviderCall records one outbound call.
func RecordProviderCall(provider, status string, latency time.Duration) {
	ProviderCalls.WithLabelValues(provider, status).Inc()
	if latency > 0 {
		ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}

// RecordBudget publishes a provider's remaining calls.
func RecordBudget(provider string, remaining int) {
	BudgetRemaining.WithLabelValues(provider).Set(float64(remaining))
}

// RecordCircuit publishes a breaker transition.
func RecordCircuit(provider string, state int) {
	CircuitState.WithLabelValues(provider).Set(float64(state))
}

// RecordRun records a finished research run and its agents.
func RecordRun(status string, agents map[string]bool) {
	ResearchRuns.WithLabelValues(status).Inc()
	for agent, ok := range agents {
		s := "ok"
		if !ok {
			s = "degraded"
		}
		AgentOutcomes.WithLabelValues(agent, s).Inc()
	}
}

// RecordFinancial records where a financial snapshot came from.
func RecordFinancial(source string) {
	FinancialSnapshots.WithLabelValues(source).Inc()
}
