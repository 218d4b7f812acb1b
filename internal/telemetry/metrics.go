package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// Metrics holds the evaluator collectors. A nil *Metrics records nothing.
type Metrics struct {
	factsInserted  *prometheus.CounterVec
	factsRetracted *prometheus.CounterVec
	batches        prometheus.Counter
	batchFailures  *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	matches        *prometheus.GaugeVec
	score          prometheus.Gauge
}

// NewMetrics registers the evaluator collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greynet_facts_inserted_total",
			Help: "Facts inserted by type",
		}, []string{"type"}),
		factsRetracted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greynet_facts_retracted_total",
			Help: "Facts retracted by type",
		}, []string{"type"}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Name: "greynet_batches_applied_total",
			Help: "Batches propagated to quiescence",
		}),
		batchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greynet_batch_failures_total",
			Help: "Rejected or failed batches by error code",
		}, []string{"code"}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "greynet_batch_duration_seconds",
			Help:    "Batch validation and propagation time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
		}),
		matches: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greynet_constraint_matches",
			Help: "Live matches per constraint",
		}, []string{"constraint"}),
		score: f.NewGauge(prometheus.GaugeOpts{
			Name: "greynet_score",
			Help: "Current total penalty",
		}),
	}
}

// ObserveBatch records a successfully applied batch.
func (m *Metrics) ObserveBatch(inserted, retracted map[ir.FactType]int, d time.Duration) {
	if m == nil {
		return
	}
	for t, n := range inserted {
		m.factsInserted.WithLabelValues(t.String()).Add(float64(n))
	}
	for t, n := range retracted {
		m.factsRetracted.WithLabelValues(t.String()).Add(float64(n))
	}
	m.batches.Inc()
	m.batchDuration.Observe(d.Seconds())
}

// BatchFailed counts a rejected or failed batch.
func (m *Metrics) BatchFailed(code string) {
	if m == nil {
		return
	}
	m.batchFailures.WithLabelValues(code).Inc()
}

// ObserveSnapshot publishes the gauges of a committed snapshot. The gauges
// are approximations; the snapshot itself stays exact.
func (m *Metrics) ObserveSnapshot(s *score.Snapshot) {
	if m == nil || s == nil {
		return
	}
	for _, c := range s.Constraints {
		m.matches.WithLabelValues(c.Name).Set(float64(c.Count))
	}
	if v, err := s.Total.Float64(); err == nil {
		m.score.Set(v)
	}
}
