package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePass(t *testing.T) {
	m := New()
	m.ObservePass("forward", 3, 1, false)
	m.ObservePass("forward", 2, 0, true)
	m.ObservePass("dropped", 0, 0, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.passes.WithLabelValues("forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("dropped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.words.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.words.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clears))
}

func TestObserveTarget(t *testing.T) {
	m := New()
	m.ObserveTarget("sqlite", nil)
	m.ObserveTarget("sqlite", errors.New("disk full"))
	m.ObserveFlush(10 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("sqlite", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("sqlite", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePass("forward", 1, 1, true)
	m.ObserveTarget("x", nil)
	m.ObserveFlush(time.Second)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObservePass("undo", 0, 2, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `wordflow_reconcile_passes_total{outcome="undo"} 1`), body)
}
