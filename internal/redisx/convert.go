package redisx

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"redstream/internal/stream"
)

// Message converts one go-redis stream entry into a domain message.
func Message(m redis.XMessage) (stream.Message, error) {
	id, err := stream.ParseID(m.ID)
	if err != nil {
		return stream.Message{}, fmt.Errorf("failed to parse message id: %w", err)
	}

	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		s, ok := v.(string)
		if !ok {
			return stream.Message{}, fmt.Errorf("unexpected value type %T for field %q of message %s", v, k, m.ID)
		}
		fields[k] = s
	}

	return stream.Message{ID: id, Fields: fields}, nil
}

// Messages converts a go-redis entry slice, preserving order.
func Messages(ms []redis.XMessage) ([]stream.Message, error) {
	out := make([]stream.Message, 0, len(ms))
	for _, m := range ms {
		msg, err := Message(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// PendingEntry converts one go-redis pending-list row into a domain
// pending entry.
func PendingEntry(p redis.XPendingExt) (stream.PendingEntry, error) {
	id, err := stream.ParseID(p.ID)
	if err != nil {
		return stream.PendingEntry{}, fmt.Errorf("failed to parse pending entry id: %w", err)
	}

	return stream.PendingEntry{
		ID:            id,
		Consumer:      p.Consumer,
		Idle:          p.Idle,
		DeliveryCount: p.RetryCount,
	}, nil
}

// PendingEntries converts a go-redis pending-list slice, preserving order.
func PendingEntries(ps []redis.XPendingExt) ([]stream.PendingEntry, error) {
	out := make([]stream.PendingEntry, 0, len(ps))
	for _, p := range ps {
		entry, err := PendingEntry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// FieldValues flattens ordered fields into the alternating key/value slice
// the append command expects, preserving field order on the wire.
func FieldValues(fields []stream.Field) []any {
	values := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		values = append(values, f.Key, f.Value)
	}
	return values
}
