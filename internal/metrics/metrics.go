package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soaringjerry/comparaholic/internal/services"
)

// Metrics exports HTTP and form persistence metrics to Prometheus.
type Metrics struct {
	requests   *promclient.CounterVec
	latency    *promclient.HistogramVec
	saves      *promclient.CounterVec
	migrations *promclient.CounterVec
	gatherer   promclient.Gatherer
}

// New registers every collector on reg. A nil reg gets a private registry.
func New(namespace string, reg *promclient.Registry) (*Metrics, error) {
	if namespace == "" {
		namespace = "comparaholic"
	}
	if reg == nil {
		reg = promclient.NewRegistry()
	}
	m := &Metrics{
		requests: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   promclient.DefBuckets,
		}, []string{"method", "route"}),
		saves: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "form_saves_total",
			Help:      "Form state saves by source and outcome.",
		}, []string{"source", "outcome"}),
		migrations: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "visitor_migrations_total",
			Help:      "Visitor submissions processed during sign-in migration, by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	var err error
	if m.requests, err = registerCounterVec(reg, m.requests); err != nil {
		return nil, fmt.Errorf("register request counter: %w", err)
	}
	if m.latency, err = registerHistogramVec(reg, m.latency); err != nil {
		return nil, fmt.Errorf("register latency histogram: %w", err)
	}
	if m.saves, err = registerCounterVec(reg, m.saves); err != nil {
		return nil, fmt.Errorf("register save counter: %w", err)
	}
	if m.migrations, err = registerCounterVec(reg, m.migrations); err != nil {
		return nil, fmt.Errorf("register migration counter: %w", err)
	}
	return m, nil
}

func registerCounterVec(reg promclient.Registerer, c *promclient.CounterVec) (*promclient.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promclient.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(reg promclient.Registerer, h *promclient.HistogramVec) (*promclient.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promclient.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return h, nil
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordSave(source services.SubmissionSource, err error) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(string(source), outcome(err)).Inc()
}

func (m *Metrics) RecordMigration(migrated, skipped, failed int) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues("migrated").Add(float64(migrated))
	m.migrations.WithLabelValues("skipped").Add(float64(skipped))
	m.migrations.WithLabelValues("failed").Add(float64(failed))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case services.IsCode(err, services.ErrorConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

var _ services.Observer = (*Metrics)(nil)
