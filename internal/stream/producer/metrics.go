package producer

import (
	"context"
	"time"

	"redstream/internal/stream"
	"redstream/internal/stream/metrics"
)

// MetricsProducer wraps a stream.Producer with metrics collection
type MetricsProducer struct {
	producer   stream.Producer
	streamName string
	registry   *metrics.Registry
}

// NewMetricsProducer creates a new instrumented producer
func NewMetricsProducer(producer stream.Producer, streamName string, registry *metrics.Registry) stream.Producer {
	return &MetricsProducer{
		producer:   producer,
		streamName: streamName,
		registry:   registry,
	}
}

// Append implements stream.Producer.Append with metrics collection
func (p *MetricsProducer) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	start := time.Now()

	id, err := p.producer.Append(ctx, fields)
	duration := time.Since(start)

	p.registry.RecordAppend(p.streamName, duration, err)

	return id, err
}
