// Package tracing wraps OpenTelemetry span creation around node dispatch
// and LM calls. It deliberately stays on the bare go.opentelemetry.io/otel
// API surface (plus otel/trace): this module never pulls in the SDK/OTLP
// exporter packages, so a span recorded here is a no-op until whatever
// embeds this engine installs a real TracerProvider via otel.SetTracerProvider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smilemakc/degflow/internal/application/deg"

// StartNodeSpan opens a span around one node's dispatch, tagged with the
// identifiers a trace viewer needs to correlate it back to a task.
func StartNodeSpan(ctx context.Context, taskID, nodeID, toolName string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "deg.dispatch_node",
		trace.WithAttributes(
			attribute.String("deg.task_id", taskID),
			attribute.String("deg.node_id", nodeID),
			attribute.String("deg.tool_name", toolName),
		),
	)
	return ctx, span
}

// StartPlanSpan opens a span around one LM planning call (initial plan or
// a correction round).
func StartPlanSpan(ctx context.Context, taskID, kind string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "deg.plan",
		trace.WithAttributes(
			attribute.String("deg.task_id", taskID),
			attribute.String("deg.plan_kind", kind),
		),
	)
	return ctx, span
}

// EndWithOutcome closes span, recording err (if any) and the resulting
// node/task status as a span attribute.
func EndWithOutcome(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("deg.outcome", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
