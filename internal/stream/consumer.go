package stream

import "context"

// Consumer defines the interface for consuming messages from a stream as
// a member of a consumer group.
type Consumer interface {
	// Consume assembles one batch of messages: new first, then own
	// pending, then claimed from idle peers. On a mid-cycle failure the
	// batch assembled so far is returned together with the error.
	Consume(ctx context.Context) (Batch, error)

	// StillMine answers whether the pending entry for id currently belongs
	// to this consumer. A snapshot only; ownership can move the instant
	// after the call returns.
	StillMine(ctx context.Context, id ID) (Ownership, error)

	// Ack removes the pending entry for id, marking the message fully
	// processed. Returns false, without error, when nothing was pending.
	Ack(ctx context.Context, id ID) (bool, error)
}
