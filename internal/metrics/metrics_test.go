package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	ObserveSearch("metrics-test", "completed")
	ObserveFallback("metrics-test")
	ObserveRecord("metrics-test")
	ObserveRecord("metrics-test")
	ObserveSkip("metrics-test", "extract_no_match")
	ObserveFetch("render", "ok")
	ObserveSinkRow("csv", "written")

	assert.InDelta(t, 1, testutil.ToFloat64(searchesTotal.WithLabelValues("metrics-test", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(fallbacksTotal.WithLabelValues("metrics-test")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(recordsTotal.WithLabelValues("metrics-test")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(skippedTotal.WithLabelValues("metrics-test", "extract_no_match")), 0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(fetchesTotal.WithLabelValues("render", "ok")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(sinkRowsTotal.WithLabelValues("csv", "written")), float64(1))
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")), float64(1))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDurationSeconds), 1)
}

func TestObserveHTTPRequest(t *testing.T) {
	ObserveHTTPRequest(http.MethodPost, "/direct", http.StatusAccepted, 10*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202")), float64(1))
}

func TestHandlerServesCollectors(t *testing.T) {
	ObserveRecord("handler-test")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sitesearch_records_total{site="handler-test"} 1`)
}
