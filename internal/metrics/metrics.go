// Package metrics defines the Prometheus collectors spec.md's ambient
// observability stack names: cycles run/skipped, per-stage rejection
// counts, option universe filter counters (spec.md §4.8), and broker
// order latency. The registry is constructed once in main and injected
// into every collaborator that needs it — no package here reaches for
// prometheus's global default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every TradeNova collector. Callers register it with
// their own *prometheus.Registry (or the default one, at main's
// discretion) via Registry.MustRegister.
type Registry struct {
	CyclesRun     prometheus.Counter
	CyclesSkipped prometheus.Counter

	StageRejections *prometheus.CounterVec

	FilterTotal      prometheus.Counter
	FilterPassed     prometheus.Counter
	FilterTruncated  prometheus.Counter

	BrokerOrderLatency *prometheus.HistogramVec
}

// New constructs a Registry with every collector created but not yet
// registered.
func New() *Registry {
	return &Registry{
		CyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradenova",
			Name:      "cycles_run_total",
			Help:      "Number of scheduler cycles that completed.",
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradenova",
			Name:      "cycles_skipped_total",
			Help:      "Number of scheduler cycles skipped due to overrun.",
		}),
		StageRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradenova",
			Name:      "stage_rejections_total",
			Help:      "Rejections per pipeline stage, labeled by stage and reason.",
		}, []string{"stage", "reason"}),
		FilterTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradenova",
			Subsystem: "option_filter",
			Name:      "contracts_total",
			Help:      "Total option contracts seen by the universe filter.",
		}),
		FilterPassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradenova",
			Subsystem: "option_filter",
			Name:      "contracts_passed_total",
			Help:      "Option contracts that passed the liquidity gatekeeper.",
		}),
		FilterTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradenova",
			Subsystem: "option_filter",
			Name:      "contracts_truncated_total",
			Help:      "Option contracts dropped by the MaxChainSize truncation.",
		}),
		BrokerOrderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradenova",
			Subsystem: "broker",
			Name:      "order_latency_seconds",
			Help:      "End-to-end broker order submission-to-terminal-status latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "status"}),
	}
}

// MustRegister registers every collector with reg.
func (r *Registry) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		r.CyclesRun,
		r.CyclesSkipped,
		r.StageRejections,
		r.FilterTotal,
		r.FilterPassed,
		r.FilterTruncated,
		r.BrokerOrderLatency,
	)
}
