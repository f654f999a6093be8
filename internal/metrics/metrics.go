// Package metrics provides the gateway's OpenTelemetry instruments,
// exported via a Prometheus exporter bridge on the metrics HTTP port.
// Grounded on MrWong99-glyphoxa's internal/observe package: the same
// instrument shapes (Float64Histogram for latencies, Int64Counter for
// events, Int64UpDownCounter for gauges), trimmed to metrics only — this
// repo does not wire distributed tracing, since spec.md's Metrics/Health
// component names counters/histograms/health only.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lokutor-ai/lokutor-gateway"

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Collector holds every OpenTelemetry metric instrument the gateway emits.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronization (spec.md §5's "MetricsCollector: atomic counters
// and lock-free histograms").
type Collector struct {
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	ActiveSessions metric.Int64UpDownCounter
	ActiveStreams  metric.Int64UpDownCounter

	FramesIn  metric.Int64Counter
	FramesOut metric.Int64Counter

	DroppedFrames metric.Int64Counter

	TTSFallbackCount metric.Int64Counter
	TTSChunkFailures metric.Int64Counter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	RoutingErrors metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

// New creates a fully initialized Collector using the given MeterProvider.
func New(mp metric.MeterProvider) (*Collector, error) {
	m := mp.Meter(meterName)
	var err error
	c := &Collector{}

	if c.STTDuration, err = m.Float64Histogram("gateway.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if c.LLMDuration, err = m.Float64Histogram("gateway.llm.duration",
		metric.WithDescription("Latency of intent routing / LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if c.TTSDuration, err = m.Float64Histogram("gateway.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis, per engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if c.ActiveSessions, err = m.Int64UpDownCounter("gateway.active_sessions",
		metric.WithDescription("Number of live WebSocket sessions."),
	); err != nil {
		return nil, err
	}
	if c.ActiveStreams, err = m.Int64UpDownCounter("gateway.active_streams",
		metric.WithDescription("Number of currently Active audio streams."),
	); err != nil {
		return nil, err
	}

	if c.FramesIn, err = m.Int64Counter("gateway.frames.in",
		metric.WithDescription("Total inbound audio frames accepted."),
	); err != nil {
		return nil, err
	}
	if c.FramesOut, err = m.Int64Counter("gateway.frames.out",
		metric.WithDescription("Total outbound audio chunks emitted."),
	); err != nil {
		return nil, err
	}
	if c.DroppedFrames, err = m.Int64Counter("gateway.frames.dropped",
		metric.WithDescription("Total inbound audio frames dropped (overflow or out-of-order)."),
	); err != nil {
		return nil, err
	}

	if c.TTSFallbackCount, err = m.Int64Counter("gateway.tts.fallback_count",
		metric.WithDescription("Total chunks synthesized via the fallback engine after a main-engine failure."),
	); err != nil {
		return nil, err
	}
	if c.TTSChunkFailures, err = m.Int64Counter("gateway.tts.chunk_failures",
		metric.WithDescription("Total chunks emitted with success:false."),
	); err != nil {
		return nil, err
	}

	if c.CacheHits, err = m.Int64Counter("gateway.tts.cache_hits",
		metric.WithDescription("Total fingerprint cache hits."),
	); err != nil {
		return nil, err
	}
	if c.CacheMisses, err = m.Int64Counter("gateway.tts.cache_misses",
		metric.WithDescription("Total fingerprint cache misses."),
	); err != nil {
		return nil, err
	}

	if c.RoutingErrors, err = m.Int64Counter("gateway.intent.routing_errors",
		metric.WithDescription("Total intent routing failures (exhausted retries)."),
	); err != nil {
		return nil, err
	}

	if c.HTTPRequestDuration, err = m.Float64Histogram("gateway.http.request.duration",
		metric.WithDescription("HTTP request latency on the metrics/health server."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

// Attr is a convenience alias for attribute.String to reduce verbosity at
// call sites, matching glyphoxa's observe.Attr.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTTSDuration records a TTS synthesis latency sample tagged by engine.
func (c *Collector) RecordTTSDuration(ctx context.Context, engine string, seconds float64) {
	c.TTSDuration.Record(ctx, seconds, metric.WithAttributes(Attr("engine", engine)))
}

// RecordFallback increments the fallback counter tagged by the engine that
// was fallen back to.
func (c *Collector) RecordFallback(ctx context.Context, engine string) {
	c.TTSFallbackCount.Add(ctx, 1, metric.WithAttributes(Attr("engine", engine)))
}

// RecordCacheResult increments the cache hit or miss counter.
func (c *Collector) RecordCacheResult(ctx context.Context, hit bool) {
	if hit {
		c.CacheHits.Add(ctx, 1)
		return
	}
	c.CacheMisses.Add(ctx, 1)
}
