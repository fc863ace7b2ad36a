package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiHandler serves a cut-down version of the book routes behind Middleware.
// Each handler stores the correlation id it sees in *cid.
func apiHandler(t *testing.T, cid *string) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTracer(t)

	record := func(status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			*cid = CorrelationID(r.Context())
			w.WriteHeader(status)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parse", record(http.StatusOK))
	mux.HandleFunc("GET /api/books/{id}", record(http.StatusOK))
	mux.HandleFunc("POST /api/books/{id}/sentences/{index}", record(http.StatusNoContent))
	mux.HandleFunc("POST /api/speech", record(http.StatusServiceUnavailable))
	return Middleware(m)(mux), reader, exp
}

func routeDurations(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "bookparser.http.request.duration")
	if met == nil {
		t.Fatal("bookparser.http.request.duration not recorded")
	}
	counts := make(map[string]uint64)
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	return counts
}

func TestMiddleware_CorrelationID(t *testing.T) {
	var cid string
	h, _, _ := apiHandler(t, &cid)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/parse", strings.NewReader(`{"text":"猫"}`)))

	if len(cid) != 32 {
		t.Fatalf("handler correlation ID = %q, want a trace id", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
	}
	if !strings.Contains(rec.Header().Get("traceparent"), cid) {
		t.Errorf("traceparent = %q, want trace %s", rec.Header().Get("traceparent"), cid)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var cid string
	h, _, _ := apiHandler(t, &cid)

	req := httptest.NewRequest("GET", "/api/books/kokoro", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if cid != traceID || rec.Header().Get("X-Correlation-ID") != traceID {
		t.Errorf("correlation ID = %q / header %q, want %s", cid, rec.Header().Get("X-Correlation-ID"), traceID)
	}
}

func TestMiddleware_TagsBookRoutes(t *testing.T) {
	var cid string
	h, reader, exp := apiHandler(t, &cid)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/books/rashomon/sentences/12", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "HTTP POST /api/books/{id}/sentences/{index}" {
		t.Errorf("span name = %q", s.Name)
	}
	if v, _ := spanAttr(t, s, AttrBookID); v.AsString() != "rashomon" {
		t.Errorf("book.id = %q, want rashomon", v.AsString())
	}
	if v, _ := spanAttr(t, s, AttrSentenceIndex); v.AsInt64() != 12 {
		t.Errorf("sentence.index = %v, want 12", v.Emit())
	}
	if v, _ := spanAttr(t, s, "http.response.status_code"); v.AsInt64() != http.StatusNoContent {
		t.Errorf("http.response.status_code = %v, want 204", v.Emit())
	}
	if got := routeDurations(t, reader); got["POST /api/books/{id}/sentences/{index}"] != 1 {
		t.Errorf("durations = %v", got)
	}
}

func TestMiddleware_OneSeriesPerRoute(t *testing.T) {
	var cid string
	h, reader, exp := apiHandler(t, &cid)

	for _, id := range []string{"kokoro", "rashomon", "botchan"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/books/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	got := routeDurations(t, reader)
	if len(got) != 2 || got["GET /api/books/{id}"] != 3 || got["/nowhere"] != 1 {
		t.Errorf("durations = %v, want 3 on the book route and 1 unrouted", got)
	}
	for _, s := range exp.GetSpans() {
		if _, ok := spanAttr(t, s, AttrSentenceIndex); ok {
			t.Errorf("span %q has a sentence index", s.Name)
		}
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	var cid string
	h, _, exp := apiHandler(t, &cid)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/speech", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Errorf("spans = %+v, want one span with error status", spans)
	}
}
