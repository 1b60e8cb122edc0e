// Package metrics exposes Prometheus counters for cruxrun sessions.
package metrics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cruxrun"

// Session outcomes recorded by [Metrics.SessionFinished].
const (
	OutcomeExited      = "exited"      // Process exited and teardown completed.
	OutcomeFailed      = "failed"      // Session aborted before or during attach.
	OutcomeInterrupted = "interrupted" // Session cancelled by a signal or stop request.
)

// Counters describing session activity.
type Metrics struct {
	registry     *prometheus.Registry
	lines        *prometheus.CounterVec
	pumpFailures *prometheus.CounterVec
	sessions     *prometheus.CounterVec
	teardown     prometheus.Histogram
}

// Creates a set of counters registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_published_total",
			Help:      "Lines read from process output streams and dispatched to a handler.",
		}, []string{"stream"}),
		pumpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_failures_total",
			Help:      "Output stream pumps stopped by a read failure.",
		}, []string{"stream"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		teardown: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "teardown_seconds",
			Help:      "Time spent releasing process, container and sandbox.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.registry.MustRegister(m.lines, m.pumpFailures, m.sessions, m.teardown)
	return m
}

// Counts one dispatched line on stream.
func (m *Metrics) LinePublished(stream string) {
	m.lines.WithLabelValues(stream).Inc()
}

// Counts one pump failure on stream.
func (m *Metrics) PumpFailed(stream string) {
	m.pumpFailures.WithLabelValues(stream).Inc()
}

// Counts a finished session.
func (m *Metrics) SessionFinished(outcome string) {
	m.sessions.WithLabelValues(outcome).Inc()
}

// Records how long teardown took.
func (m *Metrics) TeardownObserved(d time.Duration) {
	m.teardown.Observe(d.Seconds())
}

// Returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serves the counters at /metrics on addr until the returned stop function is
// called.
func (m *Metrics) Serve(addr string) (stop func(), err error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()

	slog.Debug("serving metrics", "address", listener.Addr().String())
	return func() { srv.Close() }, nil
}
