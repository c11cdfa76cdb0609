// Package broker implements the stream.Broker command surface on top of a
// Redis Streams connection. It issues single request/response round trips
// and translates backend replies and errors into domain types; all retry
// policy is left to callers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"redstream/internal/redisx"
	"redstream/internal/stream"
	"redstream/internal/validator"
)

// Broker is the concrete implementation of the stream.Broker interface
// for one stream/group/consumer identity. The connection handle must be
// established by the caller; the broker never dials or reconnects.
type Broker struct {
	client   redis.Cmdable
	identity stream.Identity
}

// New creates a broker bound to the given connection and identity.
func New(client redis.Cmdable, identity stream.Identity) (*Broker, error) {
	b := Broker{
		client:   client,
		identity: identity,
	}

	if err := validator.Validate("broker", b.client); err != nil {
		return nil, fmt.Errorf("failed to validate broker deps: %w", err)
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker identity: %w", err)
	}

	return &b, nil
}

// Identity returns the stream/group/consumer identity the broker is bound to.
func (b *Broker) Identity() stream.Identity {
	return b.identity
}

// Append implements stream.Broker.Append with a single XADD, letting the
// server assign the id.
func (b *Broker) Append(ctx context.Context, fields []stream.Field) (stream.ID, error) {
	raw, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.identity.Stream,
		ID:     "*",
		Values: redisx.FieldValues(fields),
	}).Result()
	if err != nil {
		return stream.ID{}, redisx.Classify("append", err)
	}

	id, err := stream.ParseID(raw)
	if err != nil {
		return stream.ID{}, stream.NewError(stream.KindEmptyReply, "append", err)
	}

	return id, nil
}

// ReadNew implements stream.Broker.ReadNew with XREADGROUP ">". A nil
// reply after the block duration elapses is a normal empty result.
func (b *Broker) ReadNew(ctx context.Context, count int64, block time.Duration) ([]stream.Message, error) {
	// the client encodes zero as "wait forever"; zero here means no wait
	if block <= 0 {
		block = -1
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.identity.Group,
		Consumer: b.identity.Consumer,
		Streams:  []string{b.identity.Stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, nil
	default:
		return nil, redisx.Classify("read new", err)
	}

	return b.extract("read new", streams)
}

// ReadOwnPending implements stream.Broker.ReadOwnPending with a
// non-blocking XREADGROUP from a concrete id, which the server interprets
// as "my pending entries greater than this id".
func (b *Broker) ReadOwnPending(ctx context.Context, from stream.ID, count int64) ([]stream.Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.identity.Group,
		Consumer: b.identity.Consumer,
		Streams:  []string{b.identity.Stream, from.String()},
		Count:    count,
		Block:    -1,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, nil
	default:
		return nil, redisx.Classify("read own pending", err)
	}

	return b.extract("read own pending", streams)
}

// ScanPending implements stream.Broker.ScanPending with XPENDING over the
// full id range, filtered server-side by the idle floor.
func (b *Broker) ScanPending(ctx context.Context, minIdle time.Duration, count int64) ([]stream.PendingEntry, error) {
	rows, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.identity.Stream,
		Group:  b.identity.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, nil
	default:
		return nil, redisx.Classify("scan pending", err)
	}

	entries, err := redisx.PendingEntries(rows)
	if err != nil {
		return nil, stream.NewError(stream.KindEmptyReply, "scan pending", err)
	}

	return entries, nil
}

// Claim implements stream.Broker.Claim with a single XCLAIM. The server
// skips ids whose entry disappeared or was re-delivered below minIdle, so
// the returned messages can be fewer than asked for.
func (b *Broker) Claim(ctx context.Context, minIdle time.Duration, ids []stream.ID) ([]stream.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}

	claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   b.identity.Stream,
		Group:    b.identity.Group,
		Consumer: b.identity.Consumer,
		MinIdle:  minIdle,
		Messages: raw,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, nil
	default:
		return nil, redisx.Classify("claim", err)
	}

	msgs, err := redisx.Messages(claimed)
	if err != nil {
		return nil, stream.NewError(stream.KindEmptyReply, "claim", err)
	}

	return msgs, nil
}

// PendingEntry implements stream.Broker.PendingEntry with an XPENDING
// lookup narrowed to the single id.
func (b *Broker) PendingEntry(ctx context.Context, id stream.ID) (stream.PendingEntry, bool, error) {
	rows, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.identity.Stream,
		Group:  b.identity.Group,
		Start:  id.String(),
		End:    id.String(),
		Count:  1,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return stream.PendingEntry{}, false, nil
	default:
		return stream.PendingEntry{}, false, redisx.Classify("pending entry", err)
	}

	if len(rows) == 0 {
		return stream.PendingEntry{}, false, nil
	}

	entry, err := redisx.PendingEntry(rows[0])
	if err != nil {
		return stream.PendingEntry{}, false, stream.NewError(stream.KindEmptyReply, "pending entry", err)
	}

	return entry, true, nil
}

// Ack implements stream.Broker.Ack. The server reports how many entries
// were removed; zero means the id was already acked or never delivered.
func (b *Broker) Ack(ctx context.Context, id stream.ID) (bool, error) {
	n, err := b.client.XAck(ctx, b.identity.Stream, b.identity.Group, id.String()).Result()
	if err != nil {
		return false, redisx.Classify("ack", err)
	}

	return n > 0, nil
}

// EnsureGroup implements stream.Broker.EnsureGroup. Creating a group that
// already exists is not an error; the server's BUSYGROUP rejection maps to
// a false result.
func (b *Broker) EnsureGroup(ctx context.Context, start stream.GroupStart) (bool, error) {
	err := b.client.XGroupCreateMkStream(ctx, b.identity.Stream, b.identity.Group, start.String()).Err()
	switch {
	case err == nil:
		return true, nil
	case redisx.IsBusyGroup(err):
		return false, nil
	default:
		return false, redisx.Classify("ensure group", err)
	}
}

// StreamExists implements stream.Broker.StreamExists.
func (b *Broker) StreamExists(ctx context.Context) (bool, error) {
	n, err := b.client.Exists(ctx, b.identity.Stream).Result()
	if err != nil {
		return false, redisx.Classify("stream exists", err)
	}

	return n > 0, nil
}

// Ping implements stream.Broker.Ping.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return redisx.Classify("ping", err)
	}

	return nil
}

// GroupInfo implements stream.Broker.GroupInfo.
func (b *Broker) GroupInfo(ctx context.Context) ([]stream.GroupInfo, error) {
	raw, err := b.client.XInfoGroups(ctx, b.identity.Stream).Result()
	if err != nil {
		return nil, redisx.Classify("group info", err)
	}

	groups := make([]stream.GroupInfo, 0, len(raw))
	for _, g := range raw {
		last, err := stream.ParseID(g.LastDeliveredID)
		if err != nil {
			return nil, stream.NewError(stream.KindEmptyReply, "group info", err)
		}
		groups = append(groups, stream.GroupInfo{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			LastDeliveredID: last,
		})
	}

	return groups, nil
}

// ConsumersInfo implements stream.Broker.ConsumersInfo.
func (b *Broker) ConsumersInfo(ctx context.Context) ([]stream.ConsumerInfo, error) {
	raw, err := b.client.XInfoConsumers(ctx, b.identity.Stream, b.identity.Group).Result()
	if err != nil {
		return nil, redisx.Classify("consumers info", err)
	}

	consumers := make([]stream.ConsumerInfo, 0, len(raw))
	for _, c := range raw {
		consumers = append(consumers, stream.ConsumerInfo{
			Name:    c.Name,
			Pending: c.Pending,
			Idle:    c.Idle,
		})
	}

	return consumers, nil
}

func (b *Broker) extract(op string, streams []redis.XStream) ([]stream.Message, error) {
	var msgs []stream.Message
	for _, s := range streams {
		if s.Stream != b.identity.Stream {
			continue
		}
		converted, err := redisx.Messages(s.Messages)
		if err != nil {
			return nil, stream.NewError(stream.KindEmptyReply, op, err)
		}
		msgs = append(msgs, converted...)
	}

	return msgs, nil
}
