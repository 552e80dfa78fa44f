// Package metrics owns the Prometheus collectors of the coordinator.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	travelTime  *prometheus.CounterVec
	geocode     *prometheus.CounterVec
	assignments *prometheus.CounterVec
	dispatch    *prometheus.CounterVec
	sync        *prometheus.CounterVec
	reconcile   *prometheus.CounterVec
	providerLat *prometheus.HistogramVec
}

// New registers the collectors on reg (the default registerer when nil).
// Collectors that are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		travelTime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travel_time_lookups_total",
			Help: "Travel-time lookups by the source that answered them",
		}, []string{"source"}),
		geocode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geocode_lookups_total",
			Help: "Geocode lookups by outcome",
		}, []string{"outcome"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_assignment_resolutions_total",
			Help: "Hub assignment resolutions by result",
		}, []string{"result"}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipment_dispatch_attempts_total",
			Help: "Dispatch attempts by outcome",
		}, []string{"outcome"}),
		sync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "posyandu_sync_pushes_total",
			Help: "Health post pushes to the logistics shadow registry by outcome",
		}, []string{"outcome"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "posyandu_reconcile_records_total",
			Help: "Records examined by the reconciliation sweep by action",
		}, []string{"action"}),
		providerLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maps_provider_latency_seconds",
			Help:    "Latency of external maps provider calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
	}

	var err error
	if m.travelTime, err = registerCounter(reg, m.travelTime); err != nil {
		return nil, err
	}
	if m.geocode, err = registerCounter(reg, m.geocode); err != nil {
		return nil, err
	}
	if m.assignments, err = registerCounter(reg, m.assignments); err != nil {
		return nil, err
	}
	if m.dispatch, err = registerCounter(reg, m.dispatch); err != nil {
		return nil, err
	}
	if m.sync, err = registerCounter(reg, m.sync); err != nil {
		return nil, err
	}
	if m.reconcile, err = registerCounter(reg, m.reconcile); err != nil {
		return nil, err
	}
	if err := reg.Register(m.providerLat); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.providerLat = are.ExistingCollector.(*prometheus.HistogramVec)
	}

	return m, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// RegisterDBStats exposes the sqlx pool statistics.
func RegisterDBStats(reg prometheus.Registerer, db *sqlx.DB, name string) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	err := reg.Register(collectors.NewDBStatsCollector(db.DB, name))
	if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return nil
	}
	return err
}

func (m *Metrics) TravelTimeLookup(source string) {
	if m == nil {
		return
	}
	m.travelTime.WithLabelValues(source).Inc()
}

func (m *Metrics) GeocodeLookup(outcome string) {
	if m == nil {
		return
	}
	m.geocode.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AssignmentResolved(result string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(result).Inc()
}

func (m *Metrics) DispatchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.dispatch.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SyncPush(outcome string) {
	if m == nil {
		return
	}
	m.sync.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReconcileRecord(action string) {
	if m == nil {
		return
	}
	m.reconcile.WithLabelValues(action).Inc()
}

func (m *Metrics) ProviderLatency(call string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLat.WithLabelValues(call).Observe(seconds)
}
