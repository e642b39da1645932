// Package observe provides OpenTelemetry metric instruments for voice input.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) reads from the
// global meter provider; tests should use [NewMetrics] with an SDK provider
// backed by a manual reader. A nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all murmur metrics.
const meterName = "github.com/rbright/murmur"

// Metrics holds the instruments shared by recognition, capture, and upload.
type Metrics struct {
	// RecognitionAttempts counts recognizer starts per candidate language.
	RecognitionAttempts metric.Int64Counter

	// LanguageFallbacks counts candidate chain advances.
	LanguageFallbacks metric.Int64Counter

	// RecognitionOutcomes counts settled starts by outcome ("listening" or an error code).
	RecognitionOutcomes metric.Int64Counter

	// Errors counts classified failures by component and code.
	Errors metric.Int64Counter

	// TranscriptionDuration tracks upload round-trip latency.
	TranscriptionDuration metric.Float64Histogram

	// CapturedBytes tracks encoded fallback blob sizes.
	CapturedBytes metric.Int64Histogram

	// ActiveSessions tracks live recognition or capture sessions.
	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionAttempts, err = m.Int64Counter("murmur.recognition.attempts",
		metric.WithDescription("Recognizer start attempts by candidate language."),
	); err != nil {
		return nil, err
	}
	if met.LanguageFallbacks, err = m.Int64Counter("murmur.recognition.language_fallbacks",
		metric.WithDescription("Language candidate chain advances after a rejection."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionOutcomes, err = m.Int64Counter("murmur.recognition.outcomes",
		metric.WithDescription("Settled recognition starts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("murmur.errors",
		metric.WithDescription("Classified voice input failures by component and code."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("murmur.stt.duration",
		metric.WithDescription("Latency of server-side transcription uploads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CapturedBytes, err = m.Int64Histogram("murmur.capture.bytes",
		metric.WithDescription("Encoded fallback recording size."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("murmur.active_sessions",
		metric.WithDescription("Live recognition or capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance bound to otel.GetMeterProvider.
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

// RecordAttempt counts one recognizer start for language.
func (m *Metrics) RecordAttempt(ctx context.Context, language string) {
	if m == nil {
		return
	}
	m.RecognitionAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// RecordFallback counts one chain advance away from language.
func (m *Metrics) RecordFallback(ctx context.Context, language string) {
	if m == nil {
		return
	}
	m.LanguageFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// RecordOutcome counts a settled start.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RecognitionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordError counts a classified failure.
func (m *Metrics) RecordError(ctx context.Context, component, code string) {
	if m == nil {
		return
	}
	m.Errors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("code", code),
		),
	)
}

// RecordTranscription records one upload round trip with its HTTP status ("error" on transport failure).
func (m *Metrics) RecordTranscription(ctx context.Context, elapsed time.Duration, status string) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordCapture records the size of one encoded recording.
func (m *Metrics) RecordCapture(ctx context.Context, bytes int, mediaType string) {
	if m == nil {
		return
	}
	m.CapturedBytes.Record(ctx, int64(bytes), metric.WithAttributes(attribute.String("media_type", mediaType)))
}

// SessionStarted and SessionEnded move the active session gauge.
func (m *Metrics) SessionStarted(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) SessionEnded(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}
