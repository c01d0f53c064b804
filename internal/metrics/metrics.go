// Package metrics exposes Prometheus counters for tracking and recording.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// passes counts reconciliation passes by outcome
	passes *prometheus.CounterVec
	// words counts reconciled words by direction
	words *prometheus.CounterVec
	// clears counts detected history truncations
	clears prometheus.Counter
	// flushes counts target writes by target and result
	flushes *prometheus.CounterVec
	// flushDuration tracks a full scheduler flush
	flushDuration prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wordflow_reconcile_passes_total",
			Help: "Reconciliation passes by outcome",
		}, []string{"outcome"}),
		words: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wordflow_words_total",
			Help: "Words reconciled by direction",
		}, []string{"direction"}),
		clears: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordflow_history_clears_total",
			Help: "History truncations detected during reconciliation",
		}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wordflow_flushes_total",
			Help: "Record target writes by target and result",
		}, []string{"target", "result"}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wordflow_flush_duration_seconds",
			Help:    "Scheduler flush duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// ObservePass records one reconciliation pass.
func (m *Metrics) ObservePass(outcome string, added, deleted int, cleared bool) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	if added > 0 {
		m.words.WithLabelValues("added").Add(float64(added))
	}
	if deleted > 0 {
		m.words.WithLabelValues("deleted").Add(float64(deleted))
	}
	if cleared {
		m.clears.Inc()
	}
}

// ObserveTarget records one target write.
func (m *Metrics) ObserveTarget(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(target, result).Inc()
}

// ObserveFlush records the duration of a scheduler flush.
func (m *Metrics) ObserveFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
