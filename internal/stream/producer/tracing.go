package producer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"redstream/internal/stream"
	"redstream/internal/stream/tracing"
)

// TracedProducer wraps a stream.Producer with distributed tracing
// Layer order: TracedProducer -> MetricsProducer -> Producer (real thing)
type TracedProducer struct {
	producer   stream.Producer
	streamName string
	tracer     *tracing.Tracer
}

// NewTracedProducer creates a new traced producer that wraps a metrics producer
func NewTracedProducer(producer stream.Producer, streamName string, tracer *tracing.Tracer) stream.Producer {
	return &TracedProducer{
		producer:   producer,
		streamName: streamName,
		tracer:     tracer,
	}
}

// Append implements stream.Producer.Append with distributed tracing
func (p *TracedProducer) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	ctx, span := p.tracer.StartSpan(ctx, "producer.append")
	defer span.End()

	span.SetAttributes(p.tracer.StreamAttributes(p.streamName)...)
	span.SetAttributes(attribute.Int("stream.field_count", len(fields)))

	id, err := p.producer.Append(ctx, fields)

	if err != nil {
		p.tracer.RecordError(ctx, err)
	} else {
		span.SetAttributes(attribute.String("stream.message_id", id.String()))
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(p.tracer.ErrorAttributes(err)...)

	return id, err
}
