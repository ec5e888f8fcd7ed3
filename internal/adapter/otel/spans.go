package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentrouter"

// StartDispatchSpan starts a span covering one routed task.
func StartDispatchSpan(ctx context.Context, dispatchID, taskID, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.id", dispatchID),
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
		),
	)
}

// StartAttemptSpan starts a span for a single agent attempt within a dispatch.
func StartAttemptSpan(ctx context.Context, agentID string, attempt int, score float64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "attempt",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("attempt.index", attempt),
			attribute.Float64("attempt.score", score),
		),
	)
}

// StartCaptureSpan starts a span for output capture and escalation.
func StartCaptureSpan(ctx context.Context, executorLabel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "capture",
		trace.WithAttributes(attribute.String("executor.label", executorLabel)),
	)
}

// EndSpan records outcome on span and ends it. A non-nil err marks the span
// as failed.
func EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
