// Package observe provides the hub's observability primitives: OpenTelemetry
// metrics, tracing, a trace-aware logger and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus exporter set up by [InitProvider]. [DefaultMetrics] is bound
// to the global meter provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all hub metrics.
const meterName = "github.com/MrWong99/companionhub"

// Metrics holds the hub's metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// ToolCalls counts tool invocations by "tool" and "status".
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool handler latency by "tool".
	ToolDuration metric.Float64Histogram

	// Unlocks counts feature unlocks by "feature".
	Unlocks metric.Int64Counter

	// ArtworkFetches counts artwork downloads by "status".
	ArtworkFetches metric.Int64Counter

	// ArtworkDuration tracks artwork download latency.
	ArtworkDuration metric.Float64Histogram

	// ActiveSessions tracks multi-step flows in progress by "kind".
	ActiveSessions metric.Int64UpDownCounter

	// AdventureMoves tracks the accepted choices of finished adventures by
	// "game".
	AdventureMoves metric.Int64Histogram

	// HTTPRequestDuration tracks HTTP latency by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Artwork downloads may
// run up to the fetch timeout.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("companionhub.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("companionhub.tool.duration",
		metric.WithDescription("Latency of tool handlers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Unlocks, err = m.Int64Counter("companionhub.unlocks",
		metric.WithDescription("Total feature unlocks by feature tag."),
	); err != nil {
		return nil, err
	}
	if met.ArtworkFetches, err = m.Int64Counter("companionhub.artwork.fetches",
		metric.WithDescription("Total artwork downloads by status."),
	); err != nil {
		return nil, err
	}
	if met.ArtworkDuration, err = m.Float64Histogram("companionhub.artwork.duration",
		metric.WithDescription("Latency of artwork downloads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("companionhub.active_sessions",
		metric.WithDescription("Number of multi-step flows in progress by kind."),
	); err != nil {
		return nil, err
	}
	if met.AdventureMoves, err = m.Int64Histogram("companionhub.adventure.moves",
		metric.WithDescription("Accepted choices per finished adventure."),
		metric.WithUnit("{move}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("companionhub.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] bound to
// [otel.GetMeterProvider], creating it on first call.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(Attr("tool", tool)))
}

// RecordUnlock records a feature unlock.
func (m *Metrics) RecordUnlock(ctx context.Context, feature string) {
	m.Unlocks.Add(ctx, 1, metric.WithAttributes(Attr("feature", feature)))
}

// RecordArtworkFetch records an artwork download attempt.
func (m *Metrics) RecordArtworkFetch(ctx context.Context, status string, seconds float64) {
	m.ArtworkFetches.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
	m.ArtworkDuration.Record(ctx, seconds)
}

// SessionStarted increments the active session gauge for kind.
func (m *Metrics) SessionStarted(ctx context.Context, kind string) {
	m.ActiveSessions.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// SessionEnded decrements the active session gauge for kind.
func (m *Metrics) SessionEnded(ctx context.Context, kind string) {
	m.ActiveSessions.Add(ctx, -1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordAdventureFinished records the move count of a completed adventure.
func (m *Metrics) RecordAdventureFinished(ctx context.Context, game string, moves int) {
	m.AdventureMoves.Record(ctx, int64(moves), metric.WithAttributes(Attr("game", game)))
}
