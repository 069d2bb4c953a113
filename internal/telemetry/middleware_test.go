package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	unmatchedBefore := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, path := range []string{"/items/a", "/items/b", "/nowhere/c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")) - before; got != 2 {
		t.Fatalf("route counter delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")) - unmatchedBefore; got != 1 {
		t.Fatalf("unmatched counter delta = %v, want 1", got)
	}
}

func TestTracingMiddlewareNamesSpanAfterRoute(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	r := chi.NewRouter()
	r.Use(TracingMiddleware(ServiceName))
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1 (health checks are filtered)", len(ended))
	}
	if got := ended[0].Name(); got != "GET /sessions/{id}" {
		t.Fatalf("span name = %q", got)
	}
}
