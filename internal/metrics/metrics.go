// Package metrics defines the Prometheus collectors for ledger computations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the ledger collectors. A nil *Metrics records nothing.
type Metrics struct {
	computations       *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	transfersCommitted prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_computations_total",
			Help: "Ledger computations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_computation_duration_seconds",
			Help:    "Time spent computing balances and settlement plans.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_lookups_total",
			Help: "Ledger cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		transfersCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlement_transfers_committed_total",
			Help: "Settlement transfers persisted by settle-up commits.",
		}),
	}
	reg.MustRegister(m.computations, m.duration, m.cacheLookups, m.transfersCommitted)
	return m
}

// ObserveComputation records one operation that started at start and ended with err.
func (m *Metrics) ObserveComputation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.computations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CacheLookup records a cache lookup result: "hit", "miss" or "error".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// TransfersCommitted adds n committed transfers.
func (m *Metrics) TransfersCommitted(n int) {
	if m == nil {
		return
	}
	m.transfersCommitted.Add(float64(n))
}
