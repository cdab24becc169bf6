package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

type harness struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	logs    bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{reader: sdkmetric.NewManualReader()}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h.metrics = m

	h.spans = tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(h.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return h
}

// serve runs one request with the given status through the middleware and
// returns the recorder plus the context the handler saw.
func (h *harness) serve(req *http.Request, status int, opts ...MiddlewareOption) (*httptest.ResponseRecorder, context.Context) {
	logger := slog.New(slog.NewTextHandler(&h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]MiddlewareOption{WithAccessLogger(logger)}, opts...)

	var seen context.Context
	handler := Middleware(h.metrics, opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func (h *harness) durationPoint(t *testing.T) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "pointread.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration data = %#v", met.Data)
	}
	return hist.DataPoints[0]
}

func TestMiddleware_Correlation(t *testing.T) {
	t.Run("new trace", func(t *testing.T) {
		h := newHarness(t)
		rec, ctx := h.serve(httptest.NewRequest("POST", "/getSample", nil), http.StatusOK)

		cid := CorrelationID(ctx)
		if len(cid) != 32 {
			t.Fatalf("correlation ID = %q, want 32 hex chars", cid)
		}
		if got := rec.Header().Get("X-Correlation-ID"); got != cid {
			t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
		}
	})

	t.Run("continues traceparent", func(t *testing.T) {
		h := newHarness(t)
		req := httptest.NewRequest("POST", "/getSample", nil)
		req.Header.Set("traceparent", "00-"+incomingTraceID+"-00f067aa0ba902b7-01")
		rec, ctx := h.serve(req, http.StatusOK)

		if got := CorrelationID(ctx); got != incomingTraceID {
			t.Errorf("correlation ID = %q, want %q", got, incomingTraceID)
		}
		if got := rec.Header().Get("X-Correlation-ID"); got != incomingTraceID {
			t.Errorf("X-Correlation-ID = %q, want %q", got, incomingTraceID)
		}
	})
}

func TestMiddleware_RequestID(t *testing.T) {
	h := newHarness(t)

	rec, ctx := h.serve(httptest.NewRequest("POST", "/tts", nil), http.StatusOK)
	generated := rec.Header().Get(RequestIDHeader)
	if len(generated) != 36 || RequestID(ctx) != generated {
		t.Errorf("generated id = %q, context id = %q", generated, RequestID(ctx))
	}

	req := httptest.NewRequest("POST", "/tts", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	rec, ctx = h.serve(req, http.StatusOK)
	if got := rec.Header().Get(RequestIDHeader); got != "client-42" || RequestID(ctx) != "client-42" {
		t.Errorf("echoed id = %q, context id = %q", got, RequestID(ctx))
	}
	if !strings.Contains(h.logs.String(), "request_id=client-42") {
		t.Errorf("log line lacks request id:\n%s", h.logs.String())
	}

	if RequestID(context.Background()) != "" {
		t.Error("RequestID outside middleware should be empty")
	}
}

func TestMiddleware_SpanAndStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantError bool
		wantLevel string
	}{
		{http.StatusOK, false, "level=INFO"},
		{http.StatusNotFound, false, "level=WARN"},
		{http.StatusBadGateway, true, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			h := newHarness(t)
			rec, _ := h.serve(httptest.NewRequest("POST", "/GetAccuracyFromRecordedAudio", nil), tt.status)
			if rec.Code != tt.status {
				t.Errorf("response status = %d, want %d", rec.Code, tt.status)
			}

			spans := h.spans.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			span := spans[0]
			if span.Name != "POST /GetAccuracyFromRecordedAudio" {
				t.Errorf("span name = %q", span.Name)
			}
			var gotStatus int64
			for _, a := range span.Attributes {
				if a.Key == "http.response.status_code" {
					gotStatus = a.Value.AsInt64()
				}
			}
			if gotStatus != int64(tt.status) {
				t.Errorf("span status_code = %d, want %d", gotStatus, tt.status)
			}
			if (span.Status.Code == codes.Error) != tt.wantError {
				t.Errorf("span status = %v, want error %v", span.Status.Code, tt.wantError)
			}
			if !strings.Contains(h.logs.String(), tt.wantLevel) {
				t.Errorf("log = %q, want %s", h.logs.String(), tt.wantLevel)
			}
		})
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	tests := []struct {
		name     string
		routes   []string
		path     string
		wantPath string
	}{
		{"all paths", nil, "/getSample", "/getSample"},
		{"known route", []string{"/getSample", "/tts"}, "/tts", "/tts"},
		{"unknown route", []string{"/getSample"}, "/wp-admin.php", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var opts []MiddlewareOption
			if tt.routes != nil {
				opts = append(opts, WithRoutes(tt.routes...))
			}
			h.serve(httptest.NewRequest("POST", tt.path, nil), http.StatusOK, opts...)

			dp := h.durationPoint(t)
			if dp.Count != 1 {
				t.Errorf("count = %d, want 1", dp.Count)
			}
			if v, ok := dp.Attributes.Value("path"); !ok || v.AsString() != tt.wantPath {
				t.Errorf("path = %v, want %q", v.AsString(), tt.wantPath)
			}
			if v, ok := dp.Attributes.Value("method"); !ok || v.AsString() != "POST" {
				t.Errorf("method = %v", v.AsString())
			}
			if v, ok := dp.Attributes.Value("status"); !ok || v.AsInt64() != 200 {
				t.Errorf("status = %v", v.AsInt64())
			}
		})
	}
}
