package emit

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter mirrors run events into OpenTelemetry spans.
//
// Each event becomes an immediately-ended span named after the event type,
// carrying the run ID, sequence number, and node ID as attributes. Failure
// events set the span status to Error and record the error.
//
// Spans are points in time, not durations: node latency lives in the
// Prometheus histogram, causality lives in the event trace. Configure a
// tracer provider in the host application:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("floweave"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), string(event.Type),
		trace.WithTimestamp(event.Time))
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("run_id", event.RunID),
		attribute.Int64("seq", event.Seq),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	if event.Delta != "" {
		attrs = append(attrs, attribute.Int("delta_len", len(event.Delta)))
	}
	span.SetAttributes(attrs...)

	if event.Err != "" {
		span.SetStatus(codes.Error, event.Err)
		span.RecordError(errors.New(event.Err))
	}
}
