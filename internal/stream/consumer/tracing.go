package consumer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"redstream/internal/stream"
	"redstream/internal/stream/tracing"
)

// TracedConsumer wraps a stream.Consumer with distributed tracing
// Layer order: TracedConsumer -> MetricsConsumer -> Consumer (real thing)
type TracedConsumer struct {
	consumer stream.Consumer
	identity stream.Identity
	tracer   *tracing.Tracer
}

// NewTracedConsumer creates a new traced consumer that wraps a metrics consumer
func NewTracedConsumer(consumer stream.Consumer, identity stream.Identity, tracer *tracing.Tracer) stream.Consumer {
	return &TracedConsumer{
		consumer: consumer,
		identity: identity,
		tracer:   tracer,
	}
}

// Consume implements stream.Consumer.Consume with distributed tracing
func (c *TracedConsumer) Consume(ctx context.Context) (stream.Batch, error) {
	ctx, span := c.tracer.StartSpan(ctx, "consumer.consume")
	defer span.End()

	span.SetAttributes(c.tracer.ConsumerAttributes(c.identity.Stream, c.identity.Group, c.identity.Consumer)...)

	batch, err := c.consumer.Consume(ctx)

	span.SetAttributes(
		attribute.Int("stream.batch_size", len(batch)),
		attribute.Int("stream.new_messages", batch.CountByPhase(stream.PhaseNew)),
		attribute.Int("stream.pending_messages", batch.CountByPhase(stream.PhasePending)),
		attribute.Int("stream.claimed_messages", batch.CountByPhase(stream.PhaseClaimed)),
	)

	if err != nil {
		c.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(c.tracer.ErrorAttributes(err)...)

	return batch, err
}

// StillMine implements stream.Consumer.StillMine with distributed tracing
func (c *TracedConsumer) StillMine(ctx context.Context, id stream.ID) (stream.Ownership, error) {
	ctx, span := c.tracer.StartSpan(ctx, "consumer.still_mine")
	defer span.End()

	span.SetAttributes(c.tracer.ConsumerAttributes(c.identity.Stream, c.identity.Group, c.identity.Consumer)...)
	span.SetAttributes(attribute.String("stream.message_id", id.String()))

	ownership, err := c.consumer.StillMine(ctx, id)

	span.SetAttributes(
		attribute.Bool("stream.mine", ownership.Mine),
		attribute.String("stream.owner", ownership.Owner),
		attribute.Int64("stream.delivery_count", ownership.DeliveryCount),
	)

	if err != nil {
		c.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(c.tracer.ErrorAttributes(err)...)

	return ownership, err
}

// Ack implements stream.Consumer.Ack with distributed tracing
func (c *TracedConsumer) Ack(ctx context.Context, id stream.ID) (bool, error) {
	ctx, span := c.tracer.StartSpan(ctx, "consumer.ack")
	defer span.End()

	span.SetAttributes(c.tracer.ConsumerAttributes(c.identity.Stream, c.identity.Group, c.identity.Consumer)...)
	span.SetAttributes(attribute.String("stream.message_id", id.String()))

	removed, err := c.consumer.Ack(ctx, id)

	span.SetAttributes(attribute.Bool("stream.removed", removed))

	if err != nil {
		c.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(c.tracer.ErrorAttributes(err)...)

	return removed, err
}
