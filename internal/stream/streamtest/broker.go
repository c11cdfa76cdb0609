// Package streamtest provides an in-memory stand-in for the log service
// command surface. It reproduces the server's delivery and pending-entry
// semantics closely enough to test coordination logic without a live
// backend: strictly increasing ids, one pending entry per message,
// idle-threshold claims that bump delivery counts, idempotent acks.
package streamtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"redstream/internal/stream"
)

// Log is the shared server-side state: the appended messages and the
// group's pending-entry list. Multiple brokers with distinct consumer
// identities can attach to one Log to simulate a consumer group.
type Log struct {
	mu        sync.Mutex
	messages  []stream.Message
	delivered int // index of the next never-delivered message
	pel       map[stream.ID]*pelEntry
	clock     int64 // millisecond timestamp for assigned ids
	seq       uint64
	exists    bool
	groups    map[string]bool
}

type pelEntry struct {
	owner      string
	idle       time.Duration
	deliveries int64
}

// NewLog creates an empty in-memory log.
func NewLog() *Log {
	return &Log{
		pel:    make(map[stream.ID]*pelEntry),
		clock:  1_700_000_000_000,
		groups: make(map[string]bool),
	}
}

// AdvanceIdle ages every pending entry by d, as if that much wall time
// passed without deliveries.
func (l *Log) AdvanceIdle(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.pel {
		e.idle += d
	}
}

// Tick moves the id clock forward so subsequent appends land on a later
// timestamp.
func (l *Log) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock++
	l.seq = 0
}

// PendingCount returns the current size of the pending-entry list.
func (l *Log) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pel)
}

// Broker attaches a stream.Broker view with the given identity to the log.
func (l *Log) Broker(identity stream.Identity) *Broker {
	return &Broker{log: l, identity: identity}
}

// Broker is one consumer's (or producer's) view of the shared Log. It
// implements stream.Broker.
type Broker struct {
	log      *Log
	identity stream.Identity

	// FailNext, when set, makes the named operation return the given
	// error once. Used to test mid-cycle failure behavior.
	FailNext map[string]error
}

var _ stream.Broker = (*Broker)(nil)

func (b *Broker) fail(op string) error {
	if b.FailNext == nil {
		return nil
	}
	if err, ok := b.FailNext[op]; ok {
		delete(b.FailNext, op)
		return err
	}
	return nil
}

func (b *Broker) Append(_ context.Context, fields []stream.Field) (stream.ID, error) {
	if err := b.fail("append"); err != nil {
		return stream.ID{}, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	b.log.seq++
	id := stream.ID{Timestamp: b.log.clock, Sequence: b.log.seq}

	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	b.log.messages = append(b.log.messages, stream.Message{ID: id, Fields: m})
	b.log.exists = true

	return id, nil
}

func (b *Broker) ReadNew(_ context.Context, count int64, _ time.Duration) ([]stream.Message, error) {
	if err := b.fail("read_new"); err != nil {
		return nil, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	var msgs []stream.Message
	for b.log.delivered < len(b.log.messages) && int64(len(msgs)) < count {
		msg := b.log.messages[b.log.delivered]
		b.log.delivered++
		b.log.pel[msg.ID] = &pelEntry{owner: b.identity.Consumer, deliveries: 1}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

func (b *Broker) ReadOwnPending(_ context.Context, from stream.ID, count int64) ([]stream.Message, error) {
	if err := b.fail("read_own_pending"); err != nil {
		return nil, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	var msgs []stream.Message
	for _, msg := range b.log.messages {
		if int64(len(msgs)) >= count {
			break
		}
		if !msg.ID.After(from) {
			continue
		}
		if e, ok := b.log.pel[msg.ID]; ok && e.owner == b.identity.Consumer {
			msgs = append(msgs, msg)
		}
	}

	return msgs, nil
}

func (b *Broker) ScanPending(_ context.Context, minIdle time.Duration, count int64) ([]stream.PendingEntry, error) {
	if err := b.fail("scan_pending"); err != nil {
		return nil, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	var entries []stream.PendingEntry
	for id, e := range b.log.pel {
		if e.idle >= minIdle {
			entries = append(entries, stream.PendingEntry{
				ID:            id,
				Consumer:      e.owner,
				Idle:          e.idle,
				DeliveryCount: e.deliveries,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID.Before(entries[j].ID) })
	if int64(len(entries)) > count {
		entries = entries[:count]
	}

	return entries, nil
}

func (b *Broker) Claim(_ context.Context, minIdle time.Duration, ids []stream.ID) ([]stream.Message, error) {
	if err := b.fail("claim"); err != nil {
		return nil, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	var msgs []stream.Message
	for _, id := range ids {
		e, ok := b.log.pel[id]
		if !ok || e.idle < minIdle {
			continue
		}
		e.owner = b.identity.Consumer
		e.idle = 0
		e.deliveries++

		for _, msg := range b.log.messages {
			if msg.ID == id {
				msgs = append(msgs, msg)
				break
			}
		}
	}

	return msgs, nil
}

func (b *Broker) PendingEntry(_ context.Context, id stream.ID) (stream.PendingEntry, bool, error) {
	if err := b.fail("pending_entry"); err != nil {
		return stream.PendingEntry{}, false, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	e, ok := b.log.pel[id]
	if !ok {
		return stream.PendingEntry{}, false, nil
	}

	return stream.PendingEntry{
		ID:            id,
		Consumer:      e.owner,
		Idle:          e.idle,
		DeliveryCount: e.deliveries,
	}, true, nil
}

func (b *Broker) Ack(_ context.Context, id stream.ID) (bool, error) {
	if err := b.fail("ack"); err != nil {
		return false, err
	}

	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	if _, ok := b.log.pel[id]; !ok {
		return false, nil
	}
	delete(b.log.pel, id)

	return true, nil
}

func (b *Broker) EnsureGroup(_ context.Context, _ stream.GroupStart) (bool, error) {
	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	if b.log.groups[b.identity.Group] {
		return false, nil
	}
	b.log.groups[b.identity.Group] = true
	b.log.exists = true

	return true, nil
}

func (b *Broker) StreamExists(_ context.Context) (bool, error) {
	b.log.mu.Lock()
	defer b.log.mu.Unlock()
	return b.log.exists, nil
}

func (b *Broker) Ping(_ context.Context) error {
	return nil
}

func (b *Broker) GroupInfo(_ context.Context) ([]stream.GroupInfo, error) {
	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	var groups []stream.GroupInfo
	for name := range b.log.groups {
		groups = append(groups, stream.GroupInfo{
			Name:    name,
			Pending: int64(len(b.log.pel)),
		})
	}

	return groups, nil
}

func (b *Broker) ConsumersInfo(_ context.Context) ([]stream.ConsumerInfo, error) {
	b.log.mu.Lock()
	defer b.log.mu.Unlock()

	byConsumer := make(map[string]int64)
	for _, e := range b.log.pel {
		byConsumer[e.owner]++
	}

	var consumers []stream.ConsumerInfo
	for name, pending := range byConsumer {
		consumers = append(consumers, stream.ConsumerInfo{Name: name, Pending: pending})
	}

	return consumers, nil
}
