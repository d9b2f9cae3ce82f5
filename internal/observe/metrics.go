// Package observe provides observability primitives for the rehearse client:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all rehearse metrics.
const meterName = "github.com/parakeetlabs/rehearse"

// Metrics holds all OpenTelemetry metric instruments for the client.
// All fields are safe for concurrent use.
type Metrics struct {
	// STTDuration tracks how long one recording turn's transcription stream
	// stayed open.
	STTDuration metric.Float64Histogram

	// NarrationDuration tracks question narration time, synthesis included.
	NarrationDuration metric.Float64Histogram

	// SubmitDuration tracks answer upload latency.
	SubmitDuration metric.Float64Histogram

	// Turns counts completed question turns. Use with attribute:
	//   attribute.String("interview_id", ...)
	Turns metric.Int64Counter

	// Submissions counts answer submissions. Use with attributes:
	//   attribute.String("interview_id", ...), attribute.String("status", ...)
	Submissions metric.Int64Counter

	// Failovers counts primary-to-fallback switches. Use with attribute:
	//   attribute.String("kind", "stt"|"tts")
	Failovers metric.Int64Counter

	// ProviderErrors counts speech provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks live interview sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech and upload latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("rehearse.stt.duration",
		metric.WithDescription("Duration of one turn's transcription stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NarrationDuration, err = m.Float64Histogram("rehearse.narration.duration",
		metric.WithDescription("Question narration time including synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SubmitDuration, err = m.Float64Histogram("rehearse.submit.duration",
		metric.WithDescription("Answer upload latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("rehearse.turns",
		metric.WithDescription("Completed question turns by interview."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("rehearse.submissions",
		metric.WithDescription("Answer submissions by interview and status."),
	); err != nil {
		return nil, err
	}
	if met.Failovers, err = m.Int64Counter("rehearse.failovers",
		metric.WithDescription("Primary-to-fallback provider switches by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("rehearse.provider.errors",
		metric.WithDescription("Speech provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("rehearse.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordFailover records one primary-to-fallback switch.
func (m *Metrics) RecordFailover(ctx context.Context, kind string) {
	m.Failovers.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSubmission records one answer submission outcome.
func (m *Metrics) RecordSubmission(ctx context.Context, interviewID, status string) {
	m.Submissions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("interview_id", interviewID),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one speech provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
