package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "scoring.score")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(cid))
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "scoring.score" {
		t.Fatalf("spans = %v, want one named scoring.score", spans)
	}
}

func TestLoggerFrom(t *testing.T) {
	tp, _ := newTestTracerProvider(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{"with span", true, true},
		{"without span", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := slog.New(slog.NewTextHandler(&buf, nil))

			ctx := context.Background()
			if tt.withSpan {
				c, span := tp.Tracer("test").Start(ctx, "log-test")
				defer span.End()
				ctx = c
			}
			LoggerFrom(ctx, base).Info("test message")

			got := buf.String()
			if strings.Contains(got, "trace_id=") != tt.wantTrace {
				t.Errorf("trace_id present = %v, want %v: %s", !tt.wantTrace, tt.wantTrace, got)
			}
			if strings.Contains(got, "span_id=") != tt.wantTrace {
				t.Errorf("span_id present = %v, want %v: %s", !tt.wantTrace, tt.wantTrace, got)
			}
		})
	}
}

func TestLoggerFrom_NilBase(t *testing.T) {
	if LoggerFrom(context.Background(), nil) == nil {
		t.Fatal("LoggerFrom(nil) returned nil")
	}
}
