package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/comparaholic/internal/services"
)

func TestRecordsSavesAndMigrations(t *testing.T) {
	m, err := New("test", nil)
	require.NoError(t, err)

	m.RecordSave(services.SourceVisitor, nil)
	m.RecordSave(services.SourceVisitor, services.NewConflictError("claimed"))
	m.RecordSave(services.SourceAccount, errors.New("disk"))
	m.RecordMigration(2, 1, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("visitor", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("visitor", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("account", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.migrations.WithLabelValues("migrated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.migrations.WithLabelValues("skipped")))
}

func TestRegisteringTwiceReusesCollectors(t *testing.T) {
	reg := promclient.NewRegistry()
	first, err := New("dup", reg)
	require.NoError(t, err)
	second, err := New("dup", reg)
	require.NoError(t, err)

	first.ObserveRequest(http.MethodGet, "/health", 200, time.Millisecond)
	second.ObserveRequest(http.MethodGet, "/health", 200, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.requests.WithLabelValues("GET", "/health", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New("expose", nil)
	require.NoError(t, err)
	m.ObserveRequest(http.MethodPost, "/api/auth/login", 401, 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `expose_http_requests_total{method="POST",route="/api/auth/login",status="401"} 1`))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Second)
	m.RecordSave(services.SourceAccount, nil)
	m.RecordMigration(1, 1, 1)
}
