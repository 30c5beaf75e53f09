package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Store metrics
	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
	StoreOpens    *prometheus.CounterVec
	StoreUpgrades prometheus.Counter

	// Registry metrics
	RegistryKeys prometheus.Gauge

	// Native backend metrics
	Persisted         *prometheus.CounterVec
	SagaCompensations prometheus.Counter
	OrphansReconciled *prometheus.CounterVec
	DriftDetected     *prometheus.CounterVec

	// Transient metrics
	TransientActive  prometheus.Gauge
	TransientExpired *prometheus.CounterVec

	// Permission metrics
	PermissionProbes *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetrics creates a metrics collector registered on reg. A nil reg gets a
// private registry so independent instances never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Store metrics
		StoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_store_ops_total",
				Help: "Total number of partition transactions",
			},
			[]string{"partition", "mode", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selection_store_op_duration_seconds",
				Help:    "Partition transaction duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"partition", "mode"},
		),
		StoreOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_store_opens_total",
				Help: "Total number of store open attempts by outcome",
			},
			[]string{"status"},
		),
		StoreUpgrades: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "selection_store_upgrades_total",
				Help: "Total number of schema version upgrades performed",
			},
		),

		// Registry metrics
		RegistryKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "selection_registry_keys",
				Help: "Number of keys in the registry at last listing",
			},
		),

		// Native backend metrics
		Persisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_persisted_total",
				Help: "Total number of selections persisted by storage type",
			},
			[]string{"storage_type"},
		),
		SagaCompensations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "selection_saga_compensations_total",
				Help: "Native records rolled back after a failed registration",
			},
		),
		OrphansReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_reconciled_total",
				Help: "Pending native records resolved by the startup sweep",
			},
			[]string{"action"},
		),
		DriftDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_drift_detected_total",
				Help: "Recounts that observed fewer files than recorded",
			},
			[]string{"storage_type"},
		),

		// Transient metrics
		TransientActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "selection_transient_active",
				Help: "Number of live transient sessions",
			},
		),
		TransientExpired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_transient_expired_total",
				Help: "Transient sessions converted to tombstones",
			},
			[]string{"reason"},
		),

		// Permission metrics
		PermissionProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_permission_probes_total",
				Help: "Per-handle permission probes by resulting state",
			},
			[]string{"state"},
		),
	}
}

// Registerer returns the registry the metrics were registered on
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// RecordStoreOp records a partition transaction
func (m *Metrics) RecordStoreOp(partition, mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(partition, mode, status).Inc()
	m.StoreDuration.WithLabelValues(partition, mode).Observe(duration.Seconds())
}

// RecordStoreOpen records a store open attempt
func (m *Metrics) RecordStoreOpen(status string) {
	if m == nil {
		return
	}
	m.StoreOpens.WithLabelValues(status).Inc()
}

// IncStoreUpgrades increments the schema upgrade counter
func (m *Metrics) IncStoreUpgrades() {
	if m == nil {
		return
	}
	m.StoreUpgrades.Inc()
}

// SetRegistryKeys sets the number of registry keys
func (m *Metrics) SetRegistryKeys(count int) {
	if m == nil {
		return
	}
	m.RegistryKeys.Set(float64(count))
}

// IncPersisted increments the persisted counter for a storage type
func (m *Metrics) IncPersisted(storageType string) {
	if m == nil {
		return
	}
	m.Persisted.WithLabelValues(storageType).Inc()
}

// IncSagaCompensations increments the compensation counter
func (m *Metrics) IncSagaCompensations() {
	if m == nil {
		return
	}
	m.SagaCompensations.Inc()
}

// RecordReconciled records a sweep action ("committed" or "deleted")
func (m *Metrics) RecordReconciled(action string) {
	if m == nil {
		return
	}
	m.OrphansReconciled.WithLabelValues(action).Inc()
}

// IncDriftDetected increments the drift counter
func (m *Metrics) IncDriftDetected(storageType string) {
	if m == nil {
		return
	}
	m.DriftDetected.WithLabelValues(storageType).Inc()
}

// SetTransientActive sets the number of live transient sessions
func (m *Metrics) SetTransientActive(count int) {
	if m == nil {
		return
	}
	m.TransientActive.Set(float64(count))
}

// IncTransientExpired increments the expired counter for a reason
func (m *Metrics) IncTransientExpired(reason string, n int) {
	if m == nil {
		return
	}
	m.TransientExpired.WithLabelValues(reason).Add(float64(n))
}

// RecordPermissionProbe records one handle probe outcome
func (m *Metrics) RecordPermissionProbe(state string) {
	if m == nil {
		return
	}
	m.PermissionProbes.WithLabelValues(state).Inc()
}
