package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all crawler metrics.
	MetricsNamespace = "event_crawler"
	// MetricsSubsystem is the subsystem for orchestrator metrics.
	MetricsSubsystem = "orchestrator"
)

// Metrics holds the Prometheus metrics recorded per run.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	EventsTotal        *prometheus.CounterVec
	RunsInFlight       *prometheus.GaugeVec
	SourcesDeactivated prometheus.Counter
	SinkErrors         prometheus.Counter
}

// NewMetrics creates and registers the orchestrator metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_total",
				Help:      "Crawl runs by final status and integration method",
			},
			[]string{"status", "method"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of crawl runs",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
			},
			[]string{"method"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "events_total",
				Help:      "Reconciled candidates by outcome",
			},
			[]string{"outcome"},
		),
		RunsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_in_flight",
				Help:      "Runs currently executing, by concurrency class",
			},
			[]string{"class"},
		),
		SourcesDeactivated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "sources_deactivated_total",
				Help:      "Sources deactivated for persistent zero yield",
			},
		),
		SinkErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "sink_errors_total",
				Help:      "Failed publishes to the event sink",
			},
		),
	}
}
