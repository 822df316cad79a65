package server

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeAsker{}, nil)

	_ = do(t, s.Handler(), http.MethodPost, "/api/query", `{"query":"q"}`)
	w := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{
		"finrag_http_requests_total",
		"finrag_http_duration_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("/metrics missing %s", name)
		}
	}
	// Query outcomes and ingested passages are counted by the answer and
	// ingestion packages, not again by the server.
	for _, name := range []string{
		"finrag_api_query_requests_total",
		"finrag_api_ingested_passages_total",
	} {
		if strings.Contains(string(body), name) {
			t.Errorf("/metrics exposes duplicate series %s", name)
		}
	}
}

func TestMetrics_HTTPCounterByHandlerAndCode(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil, nil)

	_ = do(t, s.Handler(), http.MethodGet, "/api/health", "")
	_ = do(t, s.Handler(), http.MethodGet, "/api/health", "")
	_ = do(t, s.Handler(), http.MethodPost, "/api/query", `{`)

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "health", "200")); got != 2 {
		t.Errorf("health 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("POST", "query", "400")); got != 1 {
		t.Errorf("query 400 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpInFlight); got != 0 {
		t.Errorf("in-flight after completion = %v, want 0", got)
	}
}

func TestMetrics_RateLimitedRequestsCounted(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	s, err := New(&fakeAsker{}, nil, &Config{RateLimit: 0.001, RateBurst: 1, MetricsRegistry: reg, MetricsGatherer: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	_ = do(t, s.Handler(), http.MethodPost, "/api/query", `{"query":"q"}`)
	w := do(t, s.Handler(), http.MethodPost, "/api/query", `{"query":"q"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("POST", "query", "429")); got != 1 {
		t.Errorf("query 429 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.rateLimitedTotal.WithLabelValues("query")); got != 1 {
		t.Errorf("rate_limited_total{query} = %v, want 1", got)
	}
}
