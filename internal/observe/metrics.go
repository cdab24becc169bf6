// Package observe provides the observability plumbing for pointread:
// OpenTelemetry metric instruments, tracing helpers, a trace-aware slog logger
// and HTTP middleware for the development backend.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping by the Prometheus exporter bridge set up in [InitProvider]. Tests
// should use [NewMetrics] with their own [metric.MeterProvider]; everything
// else can use [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pointread metrics.
const meterName = "github.com/MrWong99/pointread"

// Outcome labels for [Metrics.ScoreAttempts].
const (
	OutcomeScored    = "scored"
	OutcomeCold      = "cold"
	OutcomeStatus    = "retryable_status"
	OutcomeTransport = "transport"
	OutcomeHard      = "hard"
)

// Metrics holds all OpenTelemetry instruments used by pointread.
type Metrics struct {
	// SampleDuration tracks getSample round trips.
	SampleDuration metric.Float64Histogram

	// ScoreDuration tracks a whole scoring call including cold-start retries.
	ScoreDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis across all candidate endpoints.
	TTSDuration metric.Float64Histogram

	// ScoreAttempts counts individual scoring HTTP attempts. Attribute:
	//   attribute.String("outcome", Outcome*)
	ScoreAttempts metric.Int64Counter

	// ColdStartRetries counts waits scheduled because the backend looked cold.
	ColdStartRetries metric.Int64Counter

	// Warmups counts warm-up probes. Attribute: attribute.String("result", ...)
	Warmups metric.Int64Counter

	// Submissions counts learner submissions. Attribute:
	//   attribute.String("result", "scored"|"failed"|"stale"|"busy")
	Submissions metric.Int64Counter

	// ActiveRecordings is 1 while a take is being captured.
	ActiveRecordings metric.Int64UpDownCounter

	// HTTPRequestDuration tracks devserver request time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Scoring on a cold
// backend can take well over ten seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.SampleDuration, "pointread.sample.duration", "Latency of fetching a practice sentence."},
		{&met.ScoreDuration, "pointread.score.duration", "Latency of scoring a recording, retries included."},
		{&met.TTSDuration, "pointread.tts.duration", "Latency of remote speech synthesis."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.ScoreAttempts, err = m.Int64Counter("pointread.score.attempts",
		metric.WithDescription("Scoring HTTP attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ColdStartRetries, err = m.Int64Counter("pointread.score.cold_start_retries",
		metric.WithDescription("Retries scheduled while the scoring backend was cold."),
	); err != nil {
		return nil, err
	}
	if met.Warmups, err = m.Int64Counter("pointread.warmups",
		metric.WithDescription("Warm-up probes by result."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("pointread.practice.submissions",
		metric.WithDescription("Learner submissions by result."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("pointread.active_recordings",
		metric.WithDescription("Takes currently being captured."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pointread.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance built on
// [otel.GetMeterProvider]. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordScoreAttempt counts one scoring attempt with the given outcome.
func (m *Metrics) RecordScoreAttempt(ctx context.Context, outcome string) {
	m.ScoreAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWarmup counts a warm-up probe.
func (m *Metrics) RecordWarmup(ctx context.Context, result string) {
	m.Warmups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSubmission counts a learner submission.
func (m *Metrics) RecordSubmission(ctx context.Context, result string) {
	m.Submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
