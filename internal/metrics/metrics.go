// Package metrics exposes prometheus collectors for index builds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build outcomes recorded on the builds counter.
const (
	OutcomeBuilt    = "built"
	OutcomeUpToDate = "up_to_date"
	OutcomeFailed   = "failed"
)

// Metrics holds the build collectors. A nil *Metrics records nothing.
type Metrics struct {
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	filesProbed   prometheus.Counter
	filesSkipped  prometheus.Counter
	typesFailed   prometheus.Counter
	resources     *prometheus.GaugeVec
}

// BuildObservation is what a finished build reports.
type BuildObservation struct {
	Directory   string
	Outcome     string
	Duration    time.Duration
	Probed      int
	Skipped     int
	TypesFailed int
	Resources   int
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modindex_builds_total",
				Help: "Number of index builds by outcome.",
			},
			[]string{"outcome"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modindex_build_duration_seconds",
				Help:    "Time taken by index builds that scanned the directory.",
				Buckets: prometheus.DefBuckets,
			},
		),
		filesProbed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modindex_files_probed_total",
				Help: "Total number of module files probed.",
			},
		),
		filesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modindex_files_skipped_total",
				Help: "Total number of module files recorded as skipped.",
			},
		),
		typesFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modindex_types_failed_total",
				Help: "Total number of compiled types that failed to load during augmentation.",
			},
		),
		resources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modindex_resources",
				Help: "Number of resources in the current index of a directory.",
			},
			[]string{"directory"},
		),
	}
	reg.MustRegister(
		m.buildsTotal,
		m.buildDuration,
		m.filesProbed,
		m.filesSkipped,
		m.typesFailed,
		m.resources,
	)
	return m
}

// ObserveBuild records one build.
func (m *Metrics) ObserveBuild(o BuildObservation) {
	if m == nil {
		return
	}
	m.buildsTotal.WithLabelValues(o.Outcome).Inc()
	if o.Outcome == OutcomeUpToDate {
		return
	}
	m.buildDuration.Observe(o.Duration.Seconds())
	m.filesProbed.Add(float64(o.Probed))
	m.filesSkipped.Add(float64(o.Skipped))
	m.typesFailed.Add(float64(o.TypesFailed))
	if o.Outcome == OutcomeBuilt {
		m.resources.WithLabelValues(o.Directory).Set(float64(o.Resources))
	}
}
