package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RepositoryOp("load", nil)
	m.VersionPublished("registration")
	m.LocationRequest("regions", errors.New("down"))
	m.ProjectCreated("infra")
	m.ProjectFlagged("overdue")

	h := m.Instrument("x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RepositoryOp("save", nil)
	m.RepositoryOp("save", errors.New("quota"))
	m.LocationRequest("provinces", nil)
	m.ProjectFlagged("slippage")
	m.ProjectFlagged("slippage")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.repoOps.WithLabelValues("save", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repoOps.WithLabelValues("save", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.locationRequests.WithLabelValues("provinces", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.projectsFlagged.WithLabelValues("slippage")))
}

func TestInstrumentAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	h := m.Instrument("teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `abemis_http_requests_total{code="418",route="teapot"} 1`), body)
}
