// Package observe provides application-wide observability primitives for
// bookparser: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bookparser metrics.
const meterName = "github.com/MrWong99/bookparser"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// AnalyzeDuration tracks morphological analysis latency.
	AnalyzeDuration metric.Float64Histogram

	// LLMDuration tracks language-model translation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// SentenceDuration tracks the whole per-sentence workflow.
	SentenceDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TokensMerged counts emitted tokens by merge reason. Use with attribute:
	//   attribute.String("reason", ...)
	TokensMerged metric.Int64Counter

	// AlignmentGaps counts tokens no timing unit overlapped.
	AlignmentGaps metric.Int64Counter

	// AlignmentFallbacks counts alignments that fell back to even distribution.
	AlignmentFallbacks metric.Int64Counter

	// EnrichmentDegraded counts sentences enriched without one of their
	// sources. Use with attribute:
	//   attribute.String("source", "language-model" | "dictionary")
	EnrichmentDegraded metric.Int64Counter

	// --- Gauges ---

	// SentencesInFlight tracks sentences currently being processed.
	SentencesInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// end covers slow local language models.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	// Histograms.
	if met.AnalyzeDuration, err = histogram("bookparser.analyze.duration", "Latency of morphological analysis."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("bookparser.llm.duration", "Latency of language-model translation."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("bookparser.tts.duration", "Latency of speech synthesis."); err != nil {
		return nil, err
	}
	if met.SentenceDuration, err = histogram("bookparser.sentence.duration", "Latency of the per-sentence workflow."); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("bookparser.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("bookparser.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TokensMerged, err = m.Int64Counter("bookparser.tokens.merged",
		metric.WithDescription("Tokens emitted by the merge pipeline by merge reason."),
	); err != nil {
		return nil, err
	}
	if met.AlignmentGaps, err = m.Int64Counter("bookparser.alignment.gaps",
		metric.WithDescription("Tokens filled by gap interpolation during alignment."),
	); err != nil {
		return nil, err
	}
	if met.AlignmentFallbacks, err = m.Int64Counter("bookparser.alignment.fallbacks",
		metric.WithDescription("Alignments that fell back to even distribution."),
	); err != nil {
		return nil, err
	}
	if met.EnrichmentDegraded, err = m.Int64Counter("bookparser.enrichment.degraded",
		metric.WithDescription("Sentences enriched without one of their sources."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SentencesInFlight, err = m.Int64UpDownCounter("bookparser.sentences.in_flight",
		metric.WithDescription("Number of sentences currently being processed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("bookparser.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
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

// RecordTokensMerged adds n tokens emitted with the given merge reason.
func (m *Metrics) RecordTokensMerged(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.TokensMerged.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordAlignment records the gap count and fallback flag of one alignment.
func (m *Metrics) RecordAlignment(ctx context.Context, gaps int, fallback bool) {
	if gaps > 0 {
		m.AlignmentGaps.Add(ctx, int64(gaps))
	}
	if fallback {
		m.AlignmentFallbacks.Add(ctx, 1)
	}
}

// RecordDegraded records a sentence enriched without source.
func (m *Metrics) RecordDegraded(ctx context.Context, source string) {
	m.EnrichmentDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
