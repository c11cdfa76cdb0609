package broker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"redstream/internal/stream"
	"redstream/internal/stream/tracing"
)

// TracedBroker wraps a stream.Broker with distributed tracing
// Layer order: TracedBroker -> MetricsBroker -> Broker (real thing)
type TracedBroker struct {
	broker stream.Broker
	tracer *tracing.Tracer
}

// NewTracedBroker creates a new traced broker that wraps a metrics broker
func NewTracedBroker(broker stream.Broker, tracer *tracing.Tracer) stream.Broker {
	return &TracedBroker{
		broker: broker,
		tracer: tracer,
	}
}

func (b *TracedBroker) start(ctx context.Context, command string) (context.Context, func(error)) {
	ctx, span := b.tracer.StartSpan(ctx, "broker."+command)
	span.SetAttributes(b.tracer.CommandAttributes(command)...)

	return ctx, func(err error) {
		if err != nil {
			b.tracer.RecordError(ctx, err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(b.tracer.ErrorAttributes(err)...)
		span.End()
	}
}

// Append implements stream.Broker.Append with distributed tracing
func (b *TracedBroker) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	ctx, finish := b.start(ctx, "append")

	id, err := b.broker.Append(ctx, fields)
	if err == nil {
		b.tracer.WithAttributes(ctx, attribute.String("stream.message_id", id.String()))
	}
	finish(err)

	return id, err
}

// ReadNew implements stream.Broker.ReadNew with distributed tracing
func (b *TracedBroker) ReadNew(ctx context.Context, count int64, block time.Duration) ([]stream.Message, error) {
	ctx, finish := b.start(ctx, "read_new")

	msgs, err := b.broker.ReadNew(ctx, count, block)
	b.tracer.WithAttributes(ctx, attribute.Int("stream.messages_read", len(msgs)))
	finish(err)

	return msgs, err
}

// ReadOwnPending implements stream.Broker.ReadOwnPending with distributed tracing
func (b *TracedBroker) ReadOwnPending(ctx context.Context, from stream.ID, count int64) ([]stream.Message, error) {
	ctx, finish := b.start(ctx, "read_own_pending")

	msgs, err := b.broker.ReadOwnPending(ctx, from, count)
	b.tracer.WithAttributes(ctx, attribute.Int("stream.messages_read", len(msgs)))
	finish(err)

	return msgs, err
}

// ScanPending implements stream.Broker.ScanPending with distributed tracing
func (b *TracedBroker) ScanPending(ctx context.Context, minIdle time.Duration, count int64) ([]stream.PendingEntry, error) {
	ctx, finish := b.start(ctx, "scan_pending")

	entries, err := b.broker.ScanPending(ctx, minIdle, count)
	b.tracer.WithAttributes(ctx,
		attribute.Int("stream.pending_entries", len(entries)),
		attribute.Int64("stream.min_idle_ms", minIdle.Milliseconds()),
	)
	finish(err)

	return entries, err
}

// Claim implements stream.Broker.Claim with distributed tracing
func (b *TracedBroker) Claim(ctx context.Context, minIdle time.Duration, ids []stream.ID) ([]stream.Message, error) {
	ctx, finish := b.start(ctx, "claim")

	msgs, err := b.broker.Claim(ctx, minIdle, ids)
	b.tracer.WithAttributes(ctx,
		attribute.Int("stream.claim_candidates", len(ids)),
		attribute.Int("stream.messages_claimed", len(msgs)),
	)
	finish(err)

	return msgs, err
}

// PendingEntry implements stream.Broker.PendingEntry with distributed tracing
func (b *TracedBroker) PendingEntry(ctx context.Context, id stream.ID) (stream.PendingEntry, bool, error) {
	ctx, finish := b.start(ctx, "pending_entry")

	entry, found, err := b.broker.PendingEntry(ctx, id)
	b.tracer.WithAttributes(ctx,
		attribute.String("stream.message_id", id.String()),
		attribute.Bool("stream.pending", found),
	)
	finish(err)

	return entry, found, err
}

// Ack implements stream.Broker.Ack with distributed tracing
func (b *TracedBroker) Ack(ctx context.Context, id stream.ID) (bool, error) {
	ctx, finish := b.start(ctx, "ack")

	removed, err := b.broker.Ack(ctx, id)
	b.tracer.WithAttributes(ctx,
		attribute.String("stream.message_id", id.String()),
		attribute.Bool("stream.removed", removed),
	)
	finish(err)

	return removed, err
}

// EnsureGroup implements stream.Broker.EnsureGroup with distributed tracing
func (b *TracedBroker) EnsureGroup(ctx context.Context, groupStart stream.GroupStart) (bool, error) {
	ctx, finish := b.start(ctx, "ensure_group")

	created, err := b.broker.EnsureGroup(ctx, groupStart)
	b.tracer.WithAttributes(ctx, attribute.Bool("stream.group_created", created))
	finish(err)

	return created, err
}

// StreamExists implements stream.Broker.StreamExists with distributed tracing
func (b *TracedBroker) StreamExists(ctx context.Context) (bool, error) {
	ctx, finish := b.start(ctx, "stream_exists")

	exists, err := b.broker.StreamExists(ctx)
	b.tracer.WithAttributes(ctx, attribute.Bool("stream.exists", exists))
	finish(err)

	return exists, err
}

// Ping implements stream.Broker.Ping with distributed tracing
func (b *TracedBroker) Ping(ctx context.Context) error {
	ctx, finish := b.start(ctx, "ping")

	err := b.broker.Ping(ctx)
	finish(err)

	return err
}

// GroupInfo implements stream.Broker.GroupInfo with distributed tracing
func (b *TracedBroker) GroupInfo(ctx context.Context) ([]stream.GroupInfo, error) {
	ctx, finish := b.start(ctx, "group_info")

	groups, err := b.broker.GroupInfo(ctx)
	b.tracer.WithAttributes(ctx, attribute.Int("stream.groups", len(groups)))
	finish(err)

	return groups, err
}

// ConsumersInfo implements stream.Broker.ConsumersInfo with distributed tracing
func (b *TracedBroker) ConsumersInfo(ctx context.Context) ([]stream.ConsumerInfo, error) {
	ctx, finish := b.start(ctx, "consumers_info")

	consumers, err := b.broker.ConsumersInfo(ctx)
	b.tracer.WithAttributes(ctx, attribute.Int("stream.consumers", len(consumers)))
	finish(err)

	return consumers, err
}
