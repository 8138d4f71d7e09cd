// Package observe provides application-wide observability primitives for
// speakdrill: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// a Prometheus registry by [InitProvider]. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speakdrill metrics.
const meterName = "github.com/MrWong99/speakdrill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Provider latency ---

	// STTDuration tracks the time from opening a listening session to its
	// final transcript.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks the time to first synthesized audio.
	TTSDuration metric.Float64Histogram

	// --- Drill ---

	// ResponseDuration tracks how long learners take to answer. Use with
	// attribute.String("outcome", ...).
	ResponseDuration metric.Float64Histogram

	// Scores records the total score of every graded answer.
	Scores metric.Float64Histogram

	// TurnOutcomes counts resolved turns. Use with
	// attribute.String("outcome", ...).
	TurnOutcomes metric.Int64Counter

	// ActiveSessions tracks drill sessions that have started but not
	// completed.
	ActiveSessions metric.Int64UpDownCounter

	// --- Providers ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server request time. Use with
	// attributes attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider and learner latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("speakdrill.stt.duration",
		metric.WithDescription("Latency of speech-to-text finalisation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("speakdrill.tts.duration",
		metric.WithDescription("Latency to first synthesized audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = m.Float64Histogram("speakdrill.response.duration",
		metric.WithDescription("Time learners take to answer a prompt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Scores, err = m.Float64Histogram("speakdrill.score",
		metric.WithDescription("Total score of graded answers."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnOutcomes, err = m.Int64Counter("speakdrill.turn.outcomes",
		metric.WithDescription("Resolved drill turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("speakdrill.sessions.active",
		metric.WithDescription("Number of running drill sessions."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("speakdrill.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("speakdrill.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakdrill.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records a resolved turn. elapsed is the learner's response time;
// pass zero when the turn timed out before any answer.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TurnOutcomes.Add(ctx, 1, attrs)
	if elapsed > 0 {
		m.ResponseDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// RecordScore records the total score of a graded answer.
func (m *Metrics) RecordScore(ctx context.Context, total float64) {
	m.Scores.Record(ctx, total)
}

// RecordProviderRequest records a provider request counter increment.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
