package projections

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ripkitten-co/procview/events"
)

const instrumentationName = "github.com/ripkitten-co/procview/projections"

// Tracing wraps each event in a span from the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, evt events.Event, next Next) error {
		ctx, span := tracer.Start(ctx, "procview.event.apply",
			trace.WithAttributes(
				attribute.String("procview.event.id", evt.ID),
				attribute.String("procview.event.type", string(evt.Type)),
				attribute.String("procview.entity.id", evt.EntityID),
				attribute.String("procview.process_instance.id", evt.Process.ProcessInstanceID),
				attribute.Int64("procview.journal.position", evt.GlobalPosition),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
