package broker

import (
	"context"
	"time"

	"redstream/internal/stream"
	"redstream/internal/stream/metrics"
)

// MetricsBroker wraps a stream.Broker with metrics collection
type MetricsBroker struct {
	broker   stream.Broker
	registry *metrics.Registry
}

// NewMetricsBroker creates a new instrumented broker
func NewMetricsBroker(broker stream.Broker, registry *metrics.Registry) stream.Broker {
	return &MetricsBroker{
		broker:   broker,
		registry: registry,
	}
}

// Append implements stream.Broker.Append with metrics collection
func (b *MetricsBroker) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	start := time.Now()

	id, err := b.broker.Append(ctx, fields)
	duration := time.Since(start)

	b.registry.RecordCommand("append", duration, err)

	return id, err
}

// ReadNew implements stream.Broker.ReadNew with metrics collection
func (b *MetricsBroker) ReadNew(ctx context.Context, count int64, block time.Duration) ([]stream.Message, error) {
	start := time.Now()

	msgs, err := b.broker.ReadNew(ctx, count, block)
	duration := time.Since(start)

	b.registry.RecordCommand("read_new", duration, err)

	return msgs, err
}

// ReadOwnPending implements stream.Broker.ReadOwnPending with metrics collection
func (b *MetricsBroker) ReadOwnPending(ctx context.Context, from stream.ID, count int64) ([]stream.Message, error) {
	start := time.Now()

	msgs, err := b.broker.ReadOwnPending(ctx, from, count)
	duration := time.Since(start)

	b.registry.RecordCommand("read_own_pending", duration, err)

	return msgs, err
}

// ScanPending implements stream.Broker.ScanPending with metrics collection
func (b *MetricsBroker) ScanPending(ctx context.Context, minIdle time.Duration, count int64) ([]stream.PendingEntry, error) {
	start := time.Now()

	entries, err := b.broker.ScanPending(ctx, minIdle, count)
	duration := time.Since(start)

	b.registry.RecordCommand("scan_pending", duration, err)

	return entries, err
}

// Claim implements stream.Broker.Claim with metrics collection
func (b *MetricsBroker) Claim(ctx context.Context, minIdle time.Duration, ids []stream.ID) ([]stream.Message, error) {
	start := time.Now()

	msgs, err := b.broker.Claim(ctx, minIdle, ids)
	duration := time.Since(start)

	b.registry.RecordCommand("claim", duration, err)

	return msgs, err
}

// PendingEntry implements stream.Broker.PendingEntry with metrics collection
func (b *MetricsBroker) PendingEntry(ctx context.Context, id stream.ID) (stream.PendingEntry, bool, error) {
	start := time.Now()

	entry, found, err := b.broker.PendingEntry(ctx, id)
	duration := time.Since(start)

	b.registry.RecordCommand("pending_entry", duration, err)

	return entry, found, err
}

// Ack implements stream.Broker.Ack with metrics collection
func (b *MetricsBroker) Ack(ctx context.Context, id stream.ID) (bool, error) {
	start := time.Now()

	removed, err := b.broker.Ack(ctx, id)
	duration := time.Since(start)

	b.registry.RecordCommand("ack", duration, err)

	return removed, err
}

// EnsureGroup implements stream.Broker.EnsureGroup with metrics collection
func (b *MetricsBroker) EnsureGroup(ctx context.Context, groupStart stream.GroupStart) (bool, error) {
	start := time.Now()

	created, err := b.broker.EnsureGroup(ctx, groupStart)
	duration := time.Since(start)

	b.registry.RecordCommand("ensure_group", duration, err)

	return created, err
}

// StreamExists implements stream.Broker.StreamExists with metrics collection
func (b *MetricsBroker) StreamExists(ctx context.Context) (bool, error) {
	start := time.Now()

	exists, err := b.broker.StreamExists(ctx)
	duration := time.Since(start)

	b.registry.RecordCommand("stream_exists", duration, err)

	return exists, err
}

// Ping implements stream.Broker.Ping with metrics collection
func (b *MetricsBroker) Ping(ctx context.Context) error {
	start := time.Now()

	err := b.broker.Ping(ctx)
	duration := time.Since(start)

	b.registry.RecordCommand("ping", duration, err)

	return err
}

// GroupInfo implements stream.Broker.GroupInfo with metrics collection
func (b *MetricsBroker) GroupInfo(ctx context.Context) ([]stream.GroupInfo, error) {
	start := time.Now()

	groups, err := b.broker.GroupInfo(ctx)
	duration := time.Since(start)

	b.registry.RecordCommand("group_info", duration, err)

	return groups, err
}

// ConsumersInfo implements stream.Broker.ConsumersInfo with metrics collection
func (b *MetricsBroker) ConsumersInfo(ctx context.Context) ([]stream.ConsumerInfo, error) {
	start := time.Now()

	consumers, err := b.broker.ConsumersInfo(ctx)
	duration := time.Since(start)

	b.registry.RecordCommand("consumers_info", duration, err)

	return consumers, err
}
