// Package consumer implements the multi-step consume strategy on top of a
// stream.Broker. One consumer instance approximates at-most-one-active-
// processor semantics for a message within a consumer group using only the
// server's pending-entry bookkeeping: no client-side locking, no leader
// election, no shared in-process state across instances.
package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"redstream/internal/stream"
	"redstream/internal/validator"
)

// Consumer is the concrete implementation of the stream.Consumer
// interface. It owns a local cursor and the three read policies for its
// lifetime. Instances are not safe for concurrent use; run one per worker
// and share only the group name.
type Consumer struct {
	broker   stream.Broker
	logger   *zap.Logger
	identity stream.Identity
	policies stream.Policies
	cursor   stream.ID
}

// New creates a consumer bound to the given broker and identity. since
// seeds the informational local cursor only: delivery positions are
// managed server-side per group, so it does not reposition reads.
// Construction fails fast on missing dependencies, empty identifiers or
// zero counts.
func New(broker stream.Broker, logger *zap.Logger, identity stream.Identity, policies stream.Policies, since stream.ID) (*Consumer, error) {
	c := Consumer{
		broker:   broker,
		logger:   logger,
		identity: identity,
		policies: policies,
		cursor:   since,
	}

	if err := validator.Validate("consumer", c.broker, c.logger); err != nil {
		return nil, fmt.Errorf("failed to validate consumer deps: %w", err)
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer identity: %w", err)
	}
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer policies: %w", err)
	}

	return &c, nil
}

// Cursor returns the next new id the consumer believes it has not seen.
// It advances only on successful new-message reads and is distinct from
// the group's server-side delivery cursor.
func (c *Consumer) Cursor() stream.ID {
	return c.cursor
}

// Consume implements stream.Consumer.Consume. The batch target equals the
// new-message count; later steps only top the batch up to it. Steps run in
// strict order: new messages first (fresh work, keeps the backlog from
// growing), then own unacked deliveries (safe to reprocess, nobody else
// has touched them), then claims from idle peers (riskiest, fetched last).
// If a step fails, the batch assembled so far is returned with the error.
func (c *Consumer) Consume(ctx context.Context) (stream.Batch, error) {
	logger := c.logger.With(
		zap.String("stream", c.identity.Stream),
		zap.String("group", c.identity.Group),
		zap.String("consumer", c.identity.Consumer),
	)
	logger.Debug("starting consume cycle")

	target := c.policies.New.Count
	batch := make(stream.Batch, 0, target)
	// ids already in the batch this cycle; a message just delivered as new
	// is also in our pending list, so later steps must skip it
	seen := make(map[stream.ID]struct{}, target)

	newMsgs, err := c.broker.ReadNew(ctx, c.policies.New.Count, c.policies.New.Block)
	if err != nil {
		return batch, fmt.Errorf("failed to read new messages: %w", err)
	}
	for _, msg := range newMsgs {
		batch = append(batch, stream.Delivery{Message: msg, Phase: stream.PhaseNew})
		seen[msg.ID] = struct{}{}
		if msg.ID.After(c.cursor) {
			c.cursor = msg.ID.Next()
		}
	}

	logger.Debug("read new messages", zap.Int("count", len(newMsgs)))

	if int64(len(batch)) >= target {
		return batch, nil
	}

	pendingCount := min(c.policies.Pending.Count, target-int64(len(batch)))
	pendingMsgs, err := c.broker.ReadOwnPending(ctx, stream.ZeroID, pendingCount)
	if err != nil {
		return batch, fmt.Errorf("failed to read own pending messages: %w", err)
	}
	for _, msg := range pendingMsgs {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		batch = append(batch, stream.Delivery{Message: msg, Phase: stream.PhasePending})
		seen[msg.ID] = struct{}{}
	}

	logger.Debug("read own pending messages", zap.Int("count", len(pendingMsgs)))

	if int64(len(batch)) >= target {
		return batch, nil
	}

	claimed, err := c.claim(ctx, seen, min(c.policies.Claim.Count, target-int64(len(batch))))
	if err != nil {
		return batch, err
	}
	for _, msg := range claimed {
		batch = append(batch, stream.Delivery{Message: msg, Phase: stream.PhaseClaimed})
	}

	logger.Debug("claimed messages", zap.Int("count", len(claimed)), zap.Int("batch", len(batch)))

	return batch, nil
}

// claim scans the group's pending list for entries idle past the policy
// threshold and reassigns up to count of them to this consumer.
func (c *Consumer) claim(ctx context.Context, seen map[stream.ID]struct{}, count int64) ([]stream.Message, error) {
	entries, err := c.broker.ScanPending(ctx, c.policies.Claim.MinIdle, count)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]stream.ID, 0, len(entries))
	for _, entry := range entries {
		// earlier steps may have just re-delivered this id to us
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		ids = append(ids, entry.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed, err := c.broker.Claim(ctx, c.policies.Claim.MinIdle, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending entries: %w", err)
	}

	return claimed, nil
}

// StillMine implements stream.Consumer.StillMine. It is a best-effort
// second opinion to take immediately before side-effecting work: the
// window between consume and processing narrows, it does not close. A
// missing pending entry means someone already acked the message and is
// reported as not mine.
func (c *Consumer) StillMine(ctx context.Context, id stream.ID) (stream.Ownership, error) {
	entry, found, err := c.broker.PendingEntry(ctx, id)
	if err != nil {
		return stream.Ownership{}, fmt.Errorf("failed to look up pending entry for message %s: %w", id, err)
	}
	if !found {
		c.logger.Debug("message no longer pending", zap.Stringer("id", id))
		return stream.Ownership{ID: id}, nil
	}

	return stream.Ownership{
		ID:            id,
		Owner:         entry.Consumer,
		Idle:          entry.Idle,
		DeliveryCount: entry.DeliveryCount,
		Mine:          entry.Consumer == c.identity.Consumer,
	}, nil
}

// Ack implements stream.Consumer.Ack. Idempotent: acking an id with no
// pending entry reports false rather than an error.
func (c *Consumer) Ack(ctx context.Context, id stream.ID) (bool, error) {
	removed, err := c.broker.Ack(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to ack message %s: %w", id, err)
	}

	c.logger.Debug("acknowledged message", zap.Stringer("id", id), zap.Bool("removed", removed))

	return removed, nil
}
