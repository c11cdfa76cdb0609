package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"redstream/internal/stream"
	"redstream/internal/stream/streamtest"
)

func testPolicies() stream.Policies {
	return stream.Policies{
		New:     stream.NewMessagesPolicy{Count: 10, Block: time.Second},
		Pending: stream.PendingMessagesPolicy{Count: 10},
		Claim:   stream.ClaimPolicy{Count: 10, MinIdle: time.Minute},
	}
}

func identity(consumerName string) stream.Identity {
	return stream.Identity{Stream: "orders", Group: "processors", Consumer: consumerName}
}

func newTestConsumer(t *testing.T, log *streamtest.Log, name string, policies stream.Policies) (*Consumer, *streamtest.Broker) {
	t.Helper()

	brk := log.Broker(identity(name))
	c, err := New(brk, zap.NewNop(), identity(name), policies, stream.ZeroID)
	require.NoError(t, err)

	return c, brk
}

func appendMessages(t *testing.T, log *streamtest.Log, n int) []stream.ID {
	t.Helper()

	brk := log.Broker(identity("appender"))
	ids := make([]stream.ID, 0, n)
	for i := 0; i < n; i++ {
		id, err := brk.Append(context.Background(), []stream.Field{{Key: "k", Value: "v"}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	return ids
}

func TestNew_Validation(t *testing.T) {
	log := streamtest.NewLog()
	brk := log.Broker(identity("a"))

	tests := []struct {
		name     string
		broker   stream.Broker
		identity stream.Identity
		policies stream.Policies
	}{
		{
			name:     "nil broker",
			broker:   nil,
			identity: identity("a"),
			policies: testPolicies(),
		},
		{
			name:     "empty consumer name",
			broker:   brk,
			identity: stream.Identity{Stream: "orders", Group: "processors"},
			policies: testPolicies(),
		},
		{
			name:     "zero new count",
			broker:   brk,
			identity: identity("a"),
			policies: stream.Policies{
				Pending: stream.PendingMessagesPolicy{Count: 1},
				Claim:   stream.ClaimPolicy{Count: 1},
			},
		},
		{
			name:     "negative min idle",
			broker:   brk,
			identity: identity("a"),
			policies: stream.Policies{
				New:     stream.NewMessagesPolicy{Count: 1},
				Pending: stream.PendingMessagesPolicy{Count: 1},
				Claim:   stream.ClaimPolicy{Count: 1, MinIdle: -time.Second},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.broker, zap.NewNop(), tt.identity, tt.policies, stream.ZeroID)
			assert.Error(t, err)
		})
	}
}

func TestConsume_EmptyStream(t *testing.T) {
	log := streamtest.NewLog()
	c, _ := newTestConsumer(t, log, "a", testPolicies())

	batch, err := c.Consume(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestConsume_NewMessagesAdvanceCursor(t *testing.T) {
	log := streamtest.NewLog()
	ids := appendMessages(t, log, 3)

	c, _ := newTestConsumer(t, log, "a", testPolicies())

	batch, err := c.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, d := range batch {
		assert.Equal(t, stream.PhaseNew, d.Phase)
		assert.Equal(t, ids[i], d.Message.ID)
	}

	assert.True(t, c.Cursor().After(ids[2]), "cursor must advance past the highest id read")
}

func TestConsume_PhasePriority(t *testing.T) {
	log := streamtest.NewLog()

	// two messages consumer a fetched earlier and never acked
	appendMessages(t, log, 2)
	a, _ := newTestConsumer(t, log, "a", testPolicies())
	earlier, err := a.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, earlier, 2)

	// two messages delivered to another consumer, now idle enough to claim
	log.Tick()
	appendMessages(t, log, 2)
	crashed, _ := newTestConsumer(t, log, "crashed", testPolicies())
	_, err = crashed.Consume(context.Background())
	require.NoError(t, err)
	log.AdvanceIdle(2 * time.Minute)

	// two fresh never-delivered messages
	log.Tick()
	appendMessages(t, log, 2)

	batch, err := a.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 6)

	phases := make([]stream.Phase, 0, len(batch))
	for _, d := range batch {
		phases = append(phases, d.Phase)
	}
	assert.Equal(t, []stream.Phase{
		stream.PhaseNew, stream.PhaseNew,
		stream.PhasePending, stream.PhasePending,
		stream.PhaseClaimed, stream.PhaseClaimed,
	}, phases, "phases must never interleave out of priority order")
}

func TestConsume_TargetShortCircuits(t *testing.T) {
	log := streamtest.NewLog()
	appendMessages(t, log, 5)

	policies := testPolicies()
	policies.New.Count = 5

	c, brk := newTestConsumer(t, log, "a", policies)

	// later steps failing would surface if they ran at all
	brk.FailNext = map[string]error{
		"read_own_pending": errors.New("should not be called"),
		"scan_pending":     errors.New("should not be called"),
	}

	batch, err := c.Consume(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 5)
	assert.Equal(t, 5, batch.CountByPhase(stream.PhaseNew))
}

func TestConsume_IdleThresholdRespected(t *testing.T) {
	log := streamtest.NewLog()
	appendMessages(t, log, 1)

	crashed, _ := newTestConsumer(t, log, "crashed", testPolicies())
	_, err := crashed.Consume(context.Background())
	require.NoError(t, err)

	b, _ := newTestConsumer(t, log, "b", testPolicies())

	// entry idle below the threshold must never be claimed
	log.AdvanceIdle(30 * time.Second)
	batch, err := b.Consume(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)

	// once past the threshold it becomes eligible
	log.AdvanceIdle(31 * time.Second)
	batch, err = b.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, stream.PhaseClaimed, batch[0].Phase)
}

func TestConsume_PartialBatchPreservedOnError(t *testing.T) {
	log := streamtest.NewLog()
	appendMessages(t, log, 2)

	policies := testPolicies()
	policies.New.Count = 5

	c, brk := newTestConsumer(t, log, "a", policies)
	brk.FailNext = map[string]error{"scan_pending": errors.New("boom")}

	batch, err := c.Consume(context.Background())
	require.Error(t, err)
	assert.Len(t, batch, 2, "messages fetched before the failing step must not be lost")
	assert.Equal(t, 2, batch.CountByPhase(stream.PhaseNew))
}

func TestConsume_SelfPendingAfterRestart(t *testing.T) {
	log := streamtest.NewLog()
	ids := appendMessages(t, log, 2)

	first, _ := newTestConsumer(t, log, "a", testPolicies())
	_, err := first.Consume(context.Background())
	require.NoError(t, err)

	// same consumer name, fresh instance, as after a crash and restart
	restarted, _ := newTestConsumer(t, log, "a", testPolicies())
	batch, err := restarted.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, d := range batch {
		assert.Equal(t, stream.PhasePending, d.Phase)
		assert.Equal(t, ids[i], d.Message.ID)
	}
}

func TestStillMine_Snapshot(t *testing.T) {
	log := streamtest.NewLog()
	ids := appendMessages(t, log, 1)

	a, _ := newTestConsumer(t, log, "a", testPolicies())
	batch, err := a.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	ownership, err := a.StillMine(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, ownership.Mine)
	assert.Equal(t, "a", ownership.Owner)
	assert.EqualValues(t, 1, ownership.DeliveryCount)

	removed, err := a.Ack(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, removed)

	ownership, err = a.StillMine(context.Background(), ids[0])
	require.NoError(t, err)
	assert.False(t, ownership.Mine, "acked message must not be reported as owned")
	assert.Empty(t, ownership.Owner)
}

func TestAck_Idempotent(t *testing.T) {
	log := streamtest.NewLog()
	ids := appendMessages(t, log, 1)

	a, _ := newTestConsumer(t, log, "a", testPolicies())
	_, err := a.Consume(context.Background())
	require.NoError(t, err)

	removed, err := a.Ack(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = a.Ack(context.Background(), ids[0])
	require.NoError(t, err)
	assert.False(t, removed, "second ack must report nothing removed, not an error")
}

func TestClaimScenario(t *testing.T) {
	log := streamtest.NewLog()
	ids := appendMessages(t, log, 1)

	a, _ := newTestConsumer(t, log, "a", testPolicies())
	batch, err := a.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// a never acks; after the idle threshold b takes the message over
	log.AdvanceIdle(2 * time.Minute)

	b, _ := newTestConsumer(t, log, "b", testPolicies())
	batch, err = b.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, stream.PhaseClaimed, batch[0].Phase)
	assert.Equal(t, ids[0], batch[0].Message.ID)

	ownership, err := b.StillMine(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, ownership.Mine)
	assert.EqualValues(t, 2, ownership.DeliveryCount, "claim must bump the delivery count")

	ownership, err = a.StillMine(context.Background(), ids[0])
	require.NoError(t, err)
	assert.False(t, ownership.Mine)
	assert.Equal(t, "b", ownership.Owner)
}

func TestGroupDiagnostics(t *testing.T) {
	log := streamtest.NewLog()
	appendMessages(t, log, 3)

	a, brk := newTestConsumer(t, log, "a", testPolicies())

	require.NoError(t, brk.Ping(context.Background()))

	exists, err := brk.StreamExists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	created, err := brk.EnsureGroup(context.Background(), stream.StartFrom(stream.ZeroID))
	require.NoError(t, err)
	assert.True(t, created)
	created, err = brk.EnsureGroup(context.Background(), stream.StartFrom(stream.ZeroID))
	require.NoError(t, err)
	assert.False(t, created, "ensuring an existing group must report not created")

	_, err = a.Consume(context.Background())
	require.NoError(t, err)

	groups, err := brk.GroupInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.EqualValues(t, 3, groups[0].Pending)

	consumers, err := brk.ConsumersInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	assert.Equal(t, "a", consumers[0].Name)
	assert.EqualValues(t, 3, consumers[0].Pending)
}

func TestEndToEnd(t *testing.T) {
	log := streamtest.NewLog()

	producerBroker := log.Broker(identity("producer"))
	id, err := producerBroker.Append(context.Background(), []stream.Field{{Key: "k", Value: "v"}})
	require.NoError(t, err)

	a, _ := newTestConsumer(t, log, "a", testPolicies())
	batch, err := a.Consume(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, id, batch[0].Message.ID)
	assert.Equal(t, map[string]string{"k": "v"}, batch[0].Message.Fields)

	ownership, err := a.StillMine(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ownership.Mine)

	removed, err := a.Ack(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, log.PendingCount())

	for _, name := range []string{"a", "b"} {
		c, _ := newTestConsumer(t, log, name, testPolicies())
		ownership, err := c.StillMine(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ownership.Mine)
	}
}
