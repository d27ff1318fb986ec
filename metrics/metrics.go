// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "abemis"

// Metrics groups the portal's collectors. A nil *Metrics is valid and
// records nothing, so packages can take one optionally.
type Metrics struct {
	repoOps           *prometheus.CounterVec
	versionsPublished *prometheus.CounterVec
	locationRequests  *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	projectsCreated   *prometheus.CounterVec
	projectsFlagged   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		repoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "formbuilder",
			Name:      "repository_operations_total",
			Help:      "Form builder repository operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		versionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "formbuilder",
			Name:      "versions_published_total",
			Help:      "Form versions published, by scope kind.",
		}, []string{"scope"}),
		locationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the geographic codes service, by tier and outcome.",
		}, []string{"tier", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		projectsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "created_total",
			Help:      "Projects registered, by kind.",
		}, []string{"kind"}),
		projectsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "flagged_total",
			Help:      "Projects newly flagged by the monitor, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.repoOps, m.versionsPublished, m.locationRequests,
		m.httpRequests, m.httpDuration, m.projectsCreated, m.projectsFlagged)
	return m
}

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RepositoryOp records one repository operation.
func (m *Metrics) RepositoryOp(op string, err error) {
	if m == nil {
		return
	}
	m.repoOps.WithLabelValues(op, Outcome(err)).Inc()
}

// VersionPublished records a published form version.
func (m *Metrics) VersionPublished(scopeKind string) {
	if m == nil {
		return
	}
	m.versionsPublished.WithLabelValues(scopeKind).Inc()
}

// LocationRequest records one upstream location request.
func (m *Metrics) LocationRequest(tier string, err error) {
	if m == nil {
		return
	}
	m.locationRequests.WithLabelValues(tier, Outcome(err)).Inc()
}

// ProjectCreated records a registered project.
func (m *Metrics) ProjectCreated(kind string) {
	if m == nil {
		return
	}
	m.projectsCreated.WithLabelValues(kind).Inc()
}

// ProjectFlagged records a project newly flagged as overdue or slipping.
func (m *Metrics) ProjectFlagged(reason string) {
	if m == nil {
		return
	}
	m.projectsFlagged.WithLabelValues(reason).Inc()
}

// Instrument wraps h so each request is counted and timed under route.
func (m *Metrics) Instrument(route string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
