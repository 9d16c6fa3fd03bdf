package metrics

import (
	"net/http"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure stages reported by the scan controller
const (
	StageFetch   = "fetch"
	StageScore   = "score"
	StageTag     = "tag"
	StageMark    = "mark"
	StageAudit   = "audit"
	StageListing = "list"
)

// Metrics holds the pipeline collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	MessagesProcessed *prometheus.CounterVec
	MessagesSkipped   prometheus.Counter
	StageFailures     *prometheus.CounterVec
	ScoringRetries    prometheus.Counter
	Alerts            *prometheus.CounterVec
	RiskScores        prometheus.Histogram
	CycleDuration     *prometheus.HistogramVec
	ActiveCycle       prometheus.Gauge
}

// New creates a new Metrics instance with registered metrics.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages that completed the scan pipeline, by scan mode",
		}, []string{"mode"}),
		MessagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Candidate ids skipped because they were already processed",
		}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Failures per pipeline stage",
		}, []string{"stage"}),
		ScoringRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_retries_total",
			Help:      "Scoring calls retried after a timeout",
		}),
		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert dispatcher decisions by status",
		}, []string{"status"}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of final risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_cycle_duration_seconds",
			Help:      "Time taken by one sweep or poll cycle",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"mode"}),
		ActiveCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scan_cycle",
			Help:      "Indicates if a scan cycle is in progress",
		}),
	}
}

// AlertDispatched implements alert.Recorder
func (m *Metrics) AlertDispatched(status core.AlertStatus) {
	m.Alerts.WithLabelValues(string(status)).Inc()
}

// MessageProcessed counts a message that reached the end of the pipeline
func (m *Metrics) MessageProcessed(mode string, score float64) {
	m.MessagesProcessed.WithLabelValues(mode).Inc()
	m.RiskScores.Observe(score)
}

// MessageSkipped counts an already processed candidate
func (m *Metrics) MessageSkipped() { m.MessagesSkipped.Inc() }

// StageFailed counts a failure in one pipeline stage
func (m *Metrics) StageFailed(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// ScoringRetried counts one retry of the scoring call
func (m *Metrics) ScoringRetried() { m.ScoringRetries.Inc() }

// TrackCycle tracks the duration of a scan cycle.
func (m *Metrics) TrackCycle(mode string, f func() error) error {
	m.ActiveCycle.Inc()
	defer m.ActiveCycle.Dec()

	start := time.Now()
	err := f()
	m.CycleDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return err
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
