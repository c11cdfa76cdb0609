package consumer

import (
	"context"
	"time"

	"redstream/internal/stream"
	"redstream/internal/stream/metrics"
)

// MetricsConsumer wraps a stream.Consumer with metrics collection
type MetricsConsumer struct {
	consumer stream.Consumer
	identity stream.Identity
	registry *metrics.Registry
}

// NewMetricsConsumer creates a new instrumented consumer
func NewMetricsConsumer(consumer stream.Consumer, identity stream.Identity, registry *metrics.Registry) stream.Consumer {
	return &MetricsConsumer{
		consumer: consumer,
		identity: identity,
		registry: registry,
	}
}

// Consume implements stream.Consumer.Consume with metrics collection
func (c *MetricsConsumer) Consume(ctx context.Context) (stream.Batch, error) {
	start := time.Now()

	batch, err := c.consumer.Consume(ctx)
	duration := time.Since(start)

	byPhase := map[string]int{
		stream.PhaseNew.String():     batch.CountByPhase(stream.PhaseNew),
		stream.PhasePending.String(): batch.CountByPhase(stream.PhasePending),
		stream.PhaseClaimed.String(): batch.CountByPhase(stream.PhaseClaimed),
	}
	c.registry.RecordConsume(c.identity.Stream, c.identity.Group, c.identity.Consumer, byPhase, duration, err)

	return batch, err
}

// StillMine implements stream.Consumer.StillMine with metrics collection
func (c *MetricsConsumer) StillMine(ctx context.Context, id stream.ID) (stream.Ownership, error) {
	ownership, err := c.consumer.StillMine(ctx, id)

	c.registry.RecordOwnershipCheck(c.identity.Stream, c.identity.Group, c.identity.Consumer, ownership.Mine, err)

	return ownership, err
}

// Ack implements stream.Consumer.Ack with metrics collection
func (c *MetricsConsumer) Ack(ctx context.Context, id stream.ID) (bool, error) {
	removed, err := c.consumer.Ack(ctx, id)

	c.registry.RecordAck(c.identity.Stream, c.identity.Group, c.identity.Consumer, removed, err)

	return removed, err
}
