package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter converts events to OpenTelemetry spans.
//
// Each event becomes a span named after event.Msg, carrying the execution
// id, workflow id, step, and node id as attributes plus every Meta entry.
// Events with an "error" meta entry set the span status to error.
//
// Spans are point-in-time: they are ended immediately after creation and
// exported by whatever span processor the application configured.
//
// Usage:
//
//	tracer := otel.Tracer("pulseflow")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter over the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends a span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	o.addAttributes(span, event)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch creates spans for several events under one context, letting the
// batch span processor amortize export overhead.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.addAttributes(span, event)
		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}
		span.End()
	}
}

// Flush forces export of pending spans. Call before shutdown.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) addAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("pulseflow.execution_id", event.ExecutionID),
		attribute.String("pulseflow.workflow_id", event.WorkflowID),
		attribute.Int("pulseflow.step", event.Step),
		attribute.String("pulseflow.node_id", event.NodeID),
	)

	for key, value := range event.Meta {
		if key == "error" {
			continue
		}
		attrKey := "pulseflow." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey+"_ms", v.Milliseconds()))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
