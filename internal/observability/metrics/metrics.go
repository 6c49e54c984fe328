// Package metrics exposes Prometheus collectors for operations, submissions,
// approvals, cooldowns and the status API.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"AutoLP-Chain/internal/operation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autolp"

// Metrics owns a private registry so tests and multiple engines never collide
// on the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	SubmissionAttempts *prometheus.CounterVec
	FallbackTotal      *prometheus.CounterVec
	ApprovalsTotal     *prometheus.CounterVec
	CooldownRemaining  *prometheus.GaugeVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry. Process and Go runtime
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of finished operations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		SubmissionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_attempts_total",
			Help:      "Transaction submission attempts by contract method and result.",
		}, []string{"method", "result"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Fallback submissions after the primary call exhausted its attempts.",
		}, []string{"method"}),
		ApprovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Confirmed token approvals by mode.",
		}, []string{"mode"}),
		CooldownRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cooldown_remaining_seconds",
			Help:      "Seconds left before a gated runner may act again.",
		}, []string{"key"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status API requests by handler, method and status code.",
		}, []string{"handler", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status API latency.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"handler", "method"}),
	}
	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.SubmissionAttempts,
		m.FallbackTotal,
		m.ApprovalsTotal,
		m.CooldownRemaining,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSubmission counts one submission attempt.
func (m *Metrics) ObserveSubmission(method, result string) {
	m.SubmissionAttempts.WithLabelValues(method, result).Inc()
}

// ObserveFallback counts a fallback submission.
func (m *Metrics) ObserveFallback(method string) {
	m.FallbackTotal.WithLabelValues(method).Inc()
}

// ObserveApproval counts a confirmed approval.
func (m *Metrics) ObserveApproval(mode string) {
	m.ApprovalsTotal.WithLabelValues(mode).Inc()
}

// Report implements operation.Reporter.
func (m *Metrics) Report(_ context.Context, r operation.Result) {
	kind := string(r.Kind)
	m.OperationsTotal.WithLabelValues(kind, string(r.Status())).Inc()
	if d := r.Duration(); d > 0 {
		m.OperationDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// SetCooldownRemaining publishes the time left on a cooldown gate.
func (m *Metrics) SetCooldownRemaining(key string, remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	m.CooldownRemaining.WithLabelValues(key).Set(remaining.Seconds())
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

var _ operation.Reporter = (*Metrics)(nil)
