package producer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"redstream/internal/stream"
	"redstream/internal/validator"
)

// Producer is the concrete implementation of the stream.Producer
// interface: a single append command per call, no internal retry.
type Producer struct {
	broker stream.Broker
	logger *zap.Logger
}

// New creates a producer bound to the given broker.
func New(broker stream.Broker, logger *zap.Logger) (*Producer, error) {
	p := Producer{
		broker: broker,
		logger: logger,
	}

	if err := validator.Validate("producer", p.broker, p.logger); err != nil {
		return nil, fmt.Errorf("failed to validate producer deps: %w", err)
	}

	return &p, nil
}

// Append implements stream.Producer.Append. Fields are validated before
// the round trip: the mapping must be non-empty and keys must not be
// empty.
func (p *Producer) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	if len(fields) == 0 {
		return stream.ID{}, fmt.Errorf("fields must not be empty")
	}
	for _, f := range fields {
		if f.Key == "" {
			return stream.ID{}, fmt.Errorf("field keys must not be empty")
		}
	}

	id, err := p.broker.Append(ctx, fields)
	if err != nil {
		return stream.ID{}, fmt.Errorf("failed to append message: %w", err)
	}

	p.logger.Debug("appended message", zap.Stringer("id", id), zap.Int("fields", len(fields)))

	return id, nil
}
