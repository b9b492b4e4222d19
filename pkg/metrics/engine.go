package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Mutation outcome labels.
const (
	MutationApplied    = "applied"
	MutationCoalesced  = "coalesced"
	MutationConfirmed  = "confirmed"
	MutationRolledBack = "rolled_back"
	MutationNoop       = "noop"
)

// EngineMetrics records cart engine activity.
type EngineMetrics struct {
	refreshes          prometheus.Counter
	resolveDuration    prometheus.Histogram
	orphansDropped     prometheus.Counter
	mutations          *prometheus.CounterVec
	selectionConflicts prometheus.Counter
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
// A nil registerer yields a no-op recorder, matching how workers run without
// a metrics endpoint.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	refreshes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_refreshes_total",
		Help: "Cart projection refreshes.",
	})
	resolveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_resolve_duration_seconds",
		Help:    "Duration of full cart resolution in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	orphansDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_orphans_dropped_total",
		Help: "Raw cart lines dropped because catalog resolution failed.",
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart line mutations by outcome.",
	}, []string{"outcome"})
	selectionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_selection_conflicts_total",
		Help: "Cross-branch selection conflicts resolved by clearing.",
	})
	reg.MustRegister(refreshes, resolveDuration, orphansDropped, mutations, selectionConflicts)
	return &EngineMetrics{
		refreshes:          refreshes,
		resolveDuration:    resolveDuration,
		orphansDropped:     orphansDropped,
		mutations:          mutations,
		selectionConflicts: selectionConflicts,
	}
}

// IncRefresh counts one projection refresh.
func (m *EngineMetrics) IncRefresh() {
	if m == nil || m.refreshes == nil {
		return
	}
	m.refreshes.Inc()
}

// ObserveResolveDuration records how long a full resolve took.
func (m *EngineMetrics) ObserveResolveDuration(d time.Duration) {
	if m == nil || m.resolveDuration == nil {
		return
	}
	m.resolveDuration.Observe(d.Seconds())
}

// AddOrphansDropped counts raw lines excluded from the projection.
func (m *EngineMetrics) AddOrphansDropped(n int) {
	if m == nil || m.orphansDropped == nil || n <= 0 {
		return
	}
	m.orphansDropped.Add(float64(n))
}

// IncMutation counts a mutation with the given outcome label.
func (m *EngineMetrics) IncMutation(outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.mutations.WithLabelValues(outcome).Inc()
}

// IncSelectionConflict counts one cross-branch conflict.
func (m *EngineMetrics) IncSelectionConflict() {
	if m == nil || m.selectionConflicts == nil {
		return
	}
	m.selectionConflicts.Inc()
}
