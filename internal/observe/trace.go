package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/companionhub"

type toolKey struct{}

// Tracer returns the hub tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartToolSpan starts the server span of one MCP tool call and tags ctx
// with the tool name, which [Logger] then adds to every line. End the span
// with [EndSpan].
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, toolKey{}, tool)
	return StartSpan(ctx, "mcp.tool "+tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("mcp.tool", tool)),
	)
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ToolName returns the tool set by [StartToolSpan], or "".
func ToolName(ctx context.Context) string {
	tool, _ := ctx.Value(toolKey{}).(string)
	return tool
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace ids and the current
// tool name from ctx, when present.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if tool := ToolName(ctx); tool != "" {
		attrs = append(attrs, slog.String("tool", tool))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
