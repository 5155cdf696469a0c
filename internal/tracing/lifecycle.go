package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const lifecycleTracerName = "voicectl-lifecycle"

func lifecycleTracer() trace.Tracer {
	return Tracer(lifecycleTracerName)
}

// TraceAgentStart creates a span covering one StartAgent call.
func TraceAgentStart(ctx context.Context, channelName string, uid int64, voice string) (context.Context, trace.Span) {
	ctx, span := lifecycleTracer().Start(ctx, "agent.start",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("channel_name", channelName),
		attribute.Int64("uid", uid),
		attribute.String("voice", voice),
	)
	return ctx, span
}

// TraceAgentStop creates a span covering one StopAgent call.
func TraceAgentStop(ctx context.Context, channelName string) (context.Context, trace.Span) {
	ctx, span := lifecycleTracer().Start(ctx, "agent.stop",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("channel_name", channelName))
	return ctx, span
}

// TraceShutdown creates a span covering the controller shutdown sequence.
func TraceShutdown(ctx context.Context, workers int) (context.Context, trace.Span) {
	ctx, span := lifecycleTracer().Start(ctx, "agent.shutdown",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.Int("workers", workers))
	return ctx, span
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
