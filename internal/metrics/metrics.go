// Package metrics exposes Prometheus instruments for reconciliation passes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PassDuration        *prometheus.HistogramVec
	PassesTotal         *prometheus.CounterVec
	EventWritesTotal    *prometheus.CounterVec
	RegistrationWrites  *prometheus.CounterVec
	AggregateRefreshes  *prometheus.CounterVec
	InvalidSchedules    prometheus.Gauge
	PendingDriftUpdates prometheus.Gauge
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hackathon_reconcile_pass_duration_seconds",
			Help:    "Duration of reconciliation operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hackathon_reconcile_passes_total",
			Help: "Reconciliation operations by result",
		}, []string{"operation", "result"}),
		EventWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hackathon_reconcile_event_writes_total",
			Help: "Event status writes by outcome",
		}, []string{"outcome"}),
		RegistrationWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hackathon_reconcile_registration_writes_total",
			Help: "Registration status writes by outcome",
		}, []string{"outcome"}),
		AggregateRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hackathon_aggregate_refreshes_total",
			Help: "Participant count recomputations by outcome",
		}, []string{"outcome"}),
		InvalidSchedules: f.NewGauge(prometheus.GaugeOpts{
			Name: "hackathon_invalid_schedules",
			Help: "Events with malformed or out-of-order schedules seen in the last pass",
		}),
		PendingDriftUpdates: f.NewGauge(prometheus.GaugeOpts{
			Name: "hackathon_drift_updates_detected",
			Help: "Status updates detected in the last pass or preview",
		}),
	}
}

// ObservePass records one operation's duration and whether it completed.
func (m *Metrics) ObservePass(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PassDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.PassesTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncEventWrite(outcome string) {
	if m == nil {
		return
	}
	m.EventWritesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRegistrationWrite(outcome string) {
	if m == nil {
		return
	}
	m.RegistrationWrites.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAggregateRefresh(outcome string) {
	if m == nil {
		return
	}
	m.AggregateRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetDrift(updates, invalid int) {
	if m == nil {
		return
	}
	m.PendingDriftUpdates.Set(float64(updates))
	m.InvalidSchedules.Set(float64(invalid))
}
