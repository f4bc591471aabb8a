package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vanity"

// Metrics holds the domain collectors shared by usecases and background jobs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	authCache     *prometheus.CounterVec
	auditEvents   *prometheus.CounterVec
	exportJobs    *prometheus.CounterVec
	counterDrift  *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
}

// NewMetrics registers the domain collectors for service on reg.
func NewMetrics(reg prometheus.Registerer, service string) (*Metrics, error) {
	if reg == nil {
		return nil, fmt.Errorf("registerer is nil")
	}
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg))

	return &Metrics{
		authCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth_cache",
			Name:      "lookups_total",
			Help:      "Token verification cache lookups partitioned by result.",
		}, []string{"result"}),
		auditEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events written partitioned by type and severity.",
		}, []string{"event_type", "severity"}),
		exportJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "jobs_total",
			Help:      "Export jobs processed partitioned by outcome.",
		}, []string{"outcome"}),
		counterDrift: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "social",
			Name:      "counter_drift_total",
			Help:      "Engagement counters found out of sync with their rows.",
		}, []string{"counter"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs partitioned by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Background job run latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations published or applied, partitioned by artifact and direction.",
		}, []string{"artifact", "direction"}),
	}, nil
}

// AuthCacheLookup counts a verification cache hit or miss.
func (m *Metrics) AuthCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.authCache.WithLabelValues(result).Inc()
}

// AuditEventWritten counts a stored audit event.
func (m *Metrics) AuditEventWritten(eventType, severity string) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(eventType, severity).Inc()
}

// ExportJobFinished counts an export job by outcome (completed, failed).
func (m *Metrics) ExportJobFinished(outcome string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(outcome).Inc()
}

// CounterDriftDetected counts drifted engagement counters.
func (m *Metrics) CounterDriftDetected(counter string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.counterDrift.WithLabelValues(counter).Add(float64(n))
}

// JobRun records one background job run.
func (m *Metrics) JobRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// Invalidation counts a cache invalidation; direction is "published" or "applied".
func (m *Metrics) Invalidation(artifact, direction string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(artifact, direction).Inc()
}
