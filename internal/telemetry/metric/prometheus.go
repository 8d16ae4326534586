package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rsvpguard"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	validations        *prometheus.CounterVec
	validationDuration prometheus.Histogram

	rateLimitDecisions *prometheus.CounterVec
	rateLimitWindows   prometheus.Gauge

	securityEvents     *prometheus.CounterVec
	eventsEvicted      prometheus.Counter
	blockedIdentifiers prometheus.Gauge

	backups        *prometheus.CounterVec
	backupBytes    prometheus.Gauge
	backupDuration prometheus.Histogram
	restores       *prometheus.CounterVec

	tokensIssued prometheus.Counter

	maintenanceRuns *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry creates and registers all metrics, plus the Go runtime and
// process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Token validations by terminal reason.",
		}, []string{"reason"}),
		validationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Latency of the token validation pipeline.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by outcome.",
		}, []string{"outcome"}),
		rateLimitWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "windows",
			Help:      "Tracked rate limit windows after the last cleanup.",
		}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Security events recorded by type and severity.",
		}, []string{"type", "severity"}),
		eventsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "events_evicted_total",
			Help:      "Security events evicted from the ring buffer.",
		}),
		blockedIdentifiers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "blocked_identifiers",
			Help:      "Identifiers currently on the block list.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "created_total",
			Help:      "Backups created by result.",
		}, []string{"result"}),
		backupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "last_size_bytes",
			Help:      "Payload size of the most recent backup.",
		}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Time to create a backup.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "restores_total",
			Help:      "Restore operations by final status.",
		}, []string{"status", "dry_run"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Invitation tokens issued, backup tokens included.",
		}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Background maintenance runs by task and result.",
		}, []string{"task", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.validations, r.validationDuration,
		r.rateLimitDecisions, r.rateLimitWindows,
		r.securityEvents, r.eventsEvicted, r.blockedIdentifiers,
		r.backups, r.backupBytes, r.backupDuration, r.restores,
		r.tokensIssued, r.maintenanceRuns,
		r.httpRequests, r.httpDuration,
	)
	return r
}

// Prometheus returns the underlying registry for components that register
// their own collectors (the Badger engine).
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveValidation records one validation outcome.
func (r *Registry) ObserveValidation(reason string, d time.Duration) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(reason).Inc()
	r.validationDuration.Observe(d.Seconds())
}

// ObserveRateLimit records one limiter decision.
func (r *Registry) ObserveRateLimit(outcome string) {
	if r == nil {
		return
	}
	r.rateLimitDecisions.WithLabelValues(outcome).Inc()
}

// SetRateLimitWindows records the number of tracked windows.
func (r *Registry) SetRateLimitWindows(n int) {
	if r == nil {
		return
	}
	r.rateLimitWindows.Set(float64(n))
}

// ObserveSecurityEvent records one appended event.
func (r *Registry) ObserveSecurityEvent(eventType, severity string) {
	if r == nil {
		return
	}
	r.securityEvents.WithLabelValues(eventType, severity).Inc()
}

// AddEventsEvicted records ring buffer evictions.
func (r *Registry) AddEventsEvicted(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.eventsEvicted.Add(float64(n))
}

// SetBlockedIdentifiers records the block list size.
func (r *Registry) SetBlockedIdentifiers(n int) {
	if r == nil {
		return
	}
	r.blockedIdentifiers.Set(float64(n))
}

// ObserveBackup records one backup attempt.
func (r *Registry) ObserveBackup(err error, size int64, d time.Duration) {
	if r == nil {
		return
	}
	if err != nil {
		r.backups.WithLabelValues("error").Inc()
		return
	}
	r.backups.WithLabelValues("ok").Inc()
	r.backupBytes.Set(float64(size))
	r.backupDuration.Observe(d.Seconds())
}

// ObserveRestore records a finished restore operation.
func (r *Registry) ObserveRestore(status string, dryRun bool) {
	if r == nil {
		return
	}
	r.restores.WithLabelValues(status, strconv.FormatBool(dryRun)).Inc()
}

// AddTokensIssued records issued tokens.
func (r *Registry) AddTokensIssued(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tokensIssued.Add(float64(n))
}

// ObserveMaintenance records one background task run.
func (r *Registry) ObserveMaintenance(task string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.maintenanceRuns.WithLabelValues(task, result).Inc()
}

// ObserveHTTP records one HTTP request.
func (r *Registry) ObserveHTTP(method, route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
