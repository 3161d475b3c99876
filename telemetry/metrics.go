package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments of a run. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	deaths      *prometheus.CounterVec
	members     *prometheus.GaugeVec
	load        *prometheus.GaugeVec
	settle      prometheus.Histogram
	ticks       prometheus.Counter
	unreachable prometheus.Counter
	checkpoints *prometheus.CounterVec
}

// NewMetrics registers the run's instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		deaths: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_deaths_total",
			Help: "Deaths by taxon and cause",
		}, []string{"taxon", "cause"}),
		members: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exposure_members",
			Help: "Surviving members per instance",
		}, []string{"instance"}),
		load: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exposure_tissue_load",
			Help: "Current tissue load per instance and contaminant",
		}, []string{"instance", "contaminant"}),
		settle: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "exposure_settle_duration_seconds",
			Help:    "Wall time to settle all instances for one tick",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "exposure_ticks_total",
			Help: "Simulation ticks completed",
		}),
		unreachable: f.NewCounter(prometheus.CounterOpts{
			Name: "exposure_unreachable_total",
			Help: "Source queries that failed because the source did not answer",
		}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_checkpoints_total",
			Help: "Checkpoints written by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveDeath(taxon, cause string, count float64) {
	if m == nil || !(count > 0) {
		return
	}
	m.deaths.WithLabelValues(taxon, cause).Add(count)
}

func (m *Metrics) SetMembers(instance string, members float64) {
	if m == nil {
		return
	}
	m.members.WithLabelValues(instance).Set(members)
}

func (m *Metrics) SetLoad(instance, contaminant string, load float64) {
	if m == nil {
		return
	}
	m.load.WithLabelValues(instance, contaminant).Set(load)
}

// Forget drops the per-instance series of a removed instance.
func (m *Metrics) Forget(instance string) {
	if m == nil {
		return
	}
	m.members.DeleteLabelValues(instance)
	m.load.DeletePartialMatch(prometheus.Labels{"instance": instance})
}

func (m *Metrics) ObserveSettle(seconds float64) {
	if m == nil {
		return
	}
	m.settle.Observe(seconds)
	m.ticks.Inc()
}

func (m *Metrics) IncUnreachable() {
	if m == nil {
		return
	}
	m.unreachable.Inc()
}

func (m *Metrics) ObserveCheckpoint(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.checkpoints.WithLabelValues(result).Inc()
}
