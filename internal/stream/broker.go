package stream

import (
	"context"
	"time"
)

// Broker is the command surface of the log service, scoped to one
// stream/group/consumer identity. It is the single coordination point the
// library relies on: all cross-consumer bookkeeping (delivery tracking,
// pending entries, claims) lives on the server behind these commands.
// No method retries; every failure surfaces immediately as a *Error.
type Broker interface {
	// Append durably adds one message to the stream and returns the id the
	// server assigned to it. Assigned ids are strictly increasing.
	Append(ctx context.Context, fields []Field) (ID, error)

	// ReadNew reads up to count never-delivered messages for the group,
	// marking them pending for this consumer. It may wait up to block for
	// at least one message to arrive; a timeout with zero results returns
	// an empty slice and no error.
	ReadNew(ctx context.Context, count int64, block time.Duration) ([]Message, error)

	// ReadOwnPending reads up to count messages already delivered to this
	// consumer name, starting after the given id. Exclusive of from; pass
	// ZeroID to cover the whole pending list. Does not block.
	ReadOwnPending(ctx context.Context, from ID, count int64) ([]Message, error)

	// ScanPending lists up to count pending entries of the group, any
	// owner, whose idle duration is at least minIdle.
	ScanPending(ctx context.Context, minIdle time.Duration, count int64) ([]PendingEntry, error)

	// Claim reassigns the listed pending entries to this consumer name,
	// provided each has been idle for at least minIdle, and returns the
	// claimed messages. Each successful claim resets the entry's idle time
	// and increments its delivery count. Entries that were acked or
	// re-delivered in the meantime are silently skipped.
	Claim(ctx context.Context, minIdle time.Duration, ids []ID) ([]Message, error)

	// PendingEntry fetches the pending entry for a single id. The boolean
	// is false when no entry exists, meaning the message was acked or
	// never delivered.
	PendingEntry(ctx context.Context, id ID) (PendingEntry, bool, error)

	// Ack removes the pending entry for id. Returns false, without error,
	// when there was nothing to remove.
	Ack(ctx context.Context, id ID) (bool, error)

	// EnsureGroup creates the consumer group, and the stream if missing,
	// positioned at start. Returns false when the group already existed.
	EnsureGroup(ctx context.Context, start GroupStart) (bool, error)

	// StreamExists reports whether the stream key is present on the server.
	StreamExists(ctx context.Context) (bool, error)

	// Ping verifies the connection to the server.
	Ping(ctx context.Context) error

	// GroupInfo returns diagnostic metadata for every consumer group of
	// the stream.
	GroupInfo(ctx context.Context) ([]GroupInfo, error)

	// ConsumersInfo returns diagnostic metadata for every consumer of this
	// group.
	ConsumersInfo(ctx context.Context) ([]ConsumerInfo, error)
}

// GroupInfo is diagnostic metadata about one consumer group.
type GroupInfo struct {
	Name            string `json:"name"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	LastDeliveredID ID     `json:"lastDeliveredId"`
}

// ConsumerInfo is diagnostic metadata about one consumer of a group.
type ConsumerInfo struct {
	Name    string        `json:"name"`
	Pending int64         `json:"pending"`
	Idle    time.Duration `json:"idle"`
}
