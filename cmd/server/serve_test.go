package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soaringjerry/comparaholic/internal/config"
	"github.com/soaringjerry/comparaholic/internal/metrics"
)

func TestServerHandlerWiring(t *testing.T) {
	c := config.DefaultConfig()
	c.Storage.Driver = "memory"
	c.Commit = "abc123"
	store, closeStore, err := openStore(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()
	m, err := metrics.New("test", nil)
	require.NoError(t, err)

	handler, rt, err := newHandler(c, zap.NewNop(), store, m)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	defer rt.Close(context.Background())

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	res.Body.Close()
	assert.Equal(t, true, health["ok"])
	assert.Equal(t, "abc123", health["commit"])
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))

	res, err = http.Get(srv.URL + "/api/categories")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Cache-Control"), "no-store")

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(body), `test_http_requests_total{method="GET",route="GET /api/categories",status="200"} 1`)
}
