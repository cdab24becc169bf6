package observe

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// otherRoute is the path label for requests outside the configured routes.
const otherRoute = "other"

type requestIDKey struct{}

// RequestID returns the request id stored by [Middleware], or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithAccessLogger sets the logger for completion lines. Default:
// slog.Default() at the time of each request.
func WithAccessLogger(l *slog.Logger) MiddlewareOption {
	return func(mw *middleware) { mw.log = l }
}

// WithRoutes limits the path label of the duration metric to paths. Other
// paths are recorded as "other" so unknown URLs cannot grow the series count.
func WithRoutes(paths ...string) MiddlewareOption {
	return func(mw *middleware) { mw.routes = paths }
}

type middleware struct {
	metrics *Metrics
	log     *slog.Logger
	routes  []string
	prop    propagation.TraceContext
}

// Middleware wraps an HTTP handler with a server span (continuing any W3C
// trace context on the request), X-Correlation-ID and X-Request-Id response
// headers, a [Metrics.HTTPRequestDuration] observation and a completion log
// line. An incoming X-Request-Id is kept; otherwise a UUID is generated.
// Responses with status >= 500 mark the span as failed.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{metrics: m}
	for _, o := range opts {
		o(mw)
	}
	return mw.wrap
}

func (mw *middleware) route(path string) string {
	if mw.routes == nil || slices.Contains(mw.routes, path) {
		return path
	}
	return otherRoute
}

func (mw *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := mw.route(r.URL.Path)

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = context.WithValue(ctx, requestIDKey{}, reqID)
		ctx, span := StartSpan(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				attribute.String("request.id", reqID),
			),
		)
		defer span.End()

		if cid := CorrelationID(ctx); cid != "" {
			w.Header().Set("X-Correlation-ID", cid)
		}
		mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		duration := time.Since(start)
		mw.metrics.HTTPRequestDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", route),
				attribute.Int("status", rec.statusCode),
			),
		)

		span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))
		level := slog.LevelInfo
		switch {
		case rec.statusCode >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
			level = slog.LevelError
		case rec.statusCode >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		LoggerFrom(ctx, mw.log).LogAttrs(ctx, level, "request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.Duration("duration", duration),
			slog.String("request_id", reqID),
		)
	})
}
