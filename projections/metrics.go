package projections

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ripkitten-co/procview/events"
)

// Metrics records per-event duration and outcome counts on the global
// MeterProvider.
//
// Instruments:
//   - procview.event.duration (Float64Histogram, seconds)
//   - procview.event.applied (Int64Counter)
//
// Both carry event_type and status ("ok" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// the API hands back noop instruments on error
	duration, _ := meter.Float64Histogram(
		"procview.event.duration",
		metric.WithDescription("Time spent applying one event"),
		metric.WithUnit("s"),
	)
	applied, _ := meter.Int64Counter(
		"procview.event.applied",
		metric.WithDescription("Events run through a projection handler"),
		metric.WithUnit("{event}"),
	)

	return func(ctx context.Context, evt events.Event, next Next) error {
		start := time.Now()
		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.String("status", status),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		applied.Add(ctx, 1, attrs)
		return err
	}
}
