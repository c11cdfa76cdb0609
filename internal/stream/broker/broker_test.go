package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redstream/internal/stream"
)

// stubClient overrides only the commands a test exercises; calling
// anything else panics through the embedded nil interface.
type stubClient struct {
	redis.Cmdable

	groupCreateErr error
	lastGroupStart string

	ackN   int64
	ackErr error

	pingErr error
	existsN int64

	groups    []redis.XInfoGroup
	consumers []redis.XInfoConsumer

	lastReadArgs *redis.XReadGroupArgs
	readStreams  []redis.XStream
	readErr      error

	lastPendingArgs *redis.XPendingExtArgs
	pendingRows     []redis.XPendingExt
}

func (s *stubClient) XGroupCreateMkStream(ctx context.Context, _, _, start string) *redis.StatusCmd {
	s.lastGroupStart = start
	cmd := redis.NewStatusCmd(ctx)
	if s.groupCreateErr != nil {
		cmd.SetErr(s.groupCreateErr)
	}
	return cmd
}

func (s *stubClient) XAck(ctx context.Context, _, _ string, _ ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(s.ackN)
	if s.ackErr != nil {
		cmd.SetErr(s.ackErr)
	}
	return cmd
}

func (s *stubClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if s.pingErr != nil {
		cmd.SetErr(s.pingErr)
	}
	return cmd
}

func (s *stubClient) Exists(ctx context.Context, _ ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(s.existsN)
	return cmd
}

func (s *stubClient) XInfoGroups(ctx context.Context, _ string) *redis.XInfoGroupsCmd {
	cmd := redis.NewXInfoGroupsCmd(ctx, "")
	cmd.SetVal(s.groups)
	return cmd
}

func (s *stubClient) XInfoConsumers(ctx context.Context, _, _ string) *redis.XInfoConsumersCmd {
	cmd := redis.NewXInfoConsumersCmd(ctx, "", "")
	cmd.SetVal(s.consumers)
	return cmd
}

func (s *stubClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	s.lastReadArgs = a
	cmd := redis.NewXStreamSliceCmd(ctx)
	if s.readErr != nil {
		cmd.SetErr(s.readErr)
		return cmd
	}
	cmd.SetVal(s.readStreams)
	return cmd
}

func (s *stubClient) XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	s.lastPendingArgs = a
	cmd := redis.NewXPendingExtCmd(ctx)
	cmd.SetVal(s.pendingRows)
	return cmd
}

func testIdentity() stream.Identity {
	return stream.Identity{Stream: "orders", Group: "processors", Consumer: "worker-1"}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testIdentity())
	assert.Error(t, err)

	_, err = New(&stubClient{}, stream.Identity{Stream: "orders"})
	assert.Error(t, err)
}

func TestEnsureGroup(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCreated bool
		wantErr     bool
	}{
		{name: "created", wantCreated: true},
		{name: "already exists", err: errors.New("BUSYGROUP Consumer Group name already exists")},
		{name: "server error", err: errors.New("ERR wrong number of arguments"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{groupCreateErr: tt.err}
			b, err := New(client, testIdentity())
			require.NoError(t, err)

			created, err := b.EnsureGroup(context.Background(), stream.StartFrom(stream.ZeroID))
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, stream.IsCommand(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
		})
	}
}

func TestEnsureGroup_StartPosition(t *testing.T) {
	client := &stubClient{}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	_, err = b.EnsureGroup(context.Background(), stream.StartFrom(stream.ZeroID))
	require.NoError(t, err)
	assert.Equal(t, "0-0", client.lastGroupStart)

	_, err = b.EnsureGroup(context.Background(), stream.StartAtTail())
	require.NoError(t, err)
	assert.Equal(t, "$", client.lastGroupStart)
}

func TestAck(t *testing.T) {
	id := stream.ID{Timestamp: 1, Sequence: 2}

	b, err := New(&stubClient{ackN: 1}, testIdentity())
	require.NoError(t, err)
	removed, err := b.Ack(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, removed)

	b, err = New(&stubClient{ackN: 0}, testIdentity())
	require.NoError(t, err)
	removed, err = b.Ack(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, removed, "acking an unknown id must be a no-op, not an error")

	b, err = New(&stubClient{ackErr: errors.New("ERR boom")}, testIdentity())
	require.NoError(t, err)
	_, err = b.Ack(context.Background(), id)
	assert.Error(t, err)
	assert.True(t, stream.IsCommand(err))
}

func TestPing(t *testing.T) {
	b, err := New(&stubClient{}, testIdentity())
	require.NoError(t, err)
	assert.NoError(t, b.Ping(context.Background()))

	b, err = New(&stubClient{pingErr: errors.New("ERR loading")}, testIdentity())
	require.NoError(t, err)
	err = b.Ping(context.Background())
	assert.Error(t, err)
	assert.True(t, stream.IsCommand(err))
}

func TestStreamExists(t *testing.T) {
	b, err := New(&stubClient{existsN: 1}, testIdentity())
	require.NoError(t, err)
	exists, err := b.StreamExists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	b, err = New(&stubClient{existsN: 0}, testIdentity())
	require.NoError(t, err)
	exists, err = b.StreamExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGroupInfo(t *testing.T) {
	client := &stubClient{groups: []redis.XInfoGroup{
		{Name: "processors", Consumers: 3, Pending: 7, LastDeliveredID: "1700000000000-4"},
	}}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	groups, err := b.GroupInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, stream.GroupInfo{
		Name:            "processors",
		Consumers:       3,
		Pending:         7,
		LastDeliveredID: stream.ID{Timestamp: 1_700_000_000_000, Sequence: 4},
	}, groups[0])

	client.groups[0].LastDeliveredID = "garbage"
	_, err = b.GroupInfo(context.Background())
	assert.Error(t, err)
	assert.True(t, stream.IsEmptyReply(err))
}

func TestConsumersInfo(t *testing.T) {
	client := &stubClient{consumers: []redis.XInfoConsumer{
		{Name: "worker-0", Pending: 2, Idle: 30 * time.Second},
		{Name: "worker-1", Pending: 0, Idle: time.Second},
	}}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	consumers, err := b.ConsumersInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, consumers, 2)
	assert.Equal(t, "worker-0", consumers[0].Name)
	assert.EqualValues(t, 2, consumers[0].Pending)
	assert.Equal(t, 30*time.Second, consumers[0].Idle)
}

func TestReadNew_BlockMapping(t *testing.T) {
	client := &stubClient{readErr: redis.Nil}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	msgs, err := b.ReadNew(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, time.Duration(-1), client.lastReadArgs.Block, "zero must map to the client's no-wait encoding")

	_, err = b.ReadNew(context.Background(), 10, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, client.lastReadArgs.Block)
	assert.Equal(t, []string{"orders", ">"}, client.lastReadArgs.Streams)
}

func TestReadNew_FiltersOtherStreams(t *testing.T) {
	client := &stubClient{readStreams: []redis.XStream{
		{Stream: "other", Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]interface{}{"k": "x"}},
		}},
		{Stream: "orders", Messages: []redis.XMessage{
			{ID: "2-0", Values: map[string]interface{}{"k": "v"}},
		}},
	}}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	msgs, err := b.ReadNew(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, stream.ID{Timestamp: 2}, msgs[0].ID)
}

func TestReadOwnPending_Args(t *testing.T) {
	client := &stubClient{readErr: redis.Nil}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	msgs, err := b.ReadOwnPending(context.Background(), stream.ID{Timestamp: 5, Sequence: 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, []string{"orders", "5-1"}, client.lastReadArgs.Streams)
	assert.EqualValues(t, 3, client.lastReadArgs.Count)
	assert.Equal(t, time.Duration(-1), client.lastReadArgs.Block, "own-pending reads never block")
}

func TestScanPending_Args(t *testing.T) {
	client := &stubClient{pendingRows: []redis.XPendingExt{
		{ID: "7-0", Consumer: "worker-2", Idle: 2 * time.Minute, RetryCount: 4},
	}}
	b, err := New(client, testIdentity())
	require.NoError(t, err)

	entries, err := b.ScanPending(context.Background(), time.Minute, 25)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, client.lastPendingArgs.Idle, "idle floor must be pushed to the server")
	assert.Equal(t, "-", client.lastPendingArgs.Start)
	assert.Equal(t, "+", client.lastPendingArgs.End)
	assert.EqualValues(t, 25, client.lastPendingArgs.Count)

	require.Len(t, entries, 1)
	assert.Equal(t, stream.PendingEntry{
		ID:            stream.ID{Timestamp: 7},
		Consumer:      "worker-2",
		Idle:          2 * time.Minute,
		DeliveryCount: 4,
	}, entries[0])
}
