package redisx

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redstream/internal/stream"
)

func TestMessage(t *testing.T) {
	msg, err := Message(redis.XMessage{
		ID:     "1700000000000-3",
		Values: map[string]interface{}{"order": "123", "state": "created"},
	})
	require.NoError(t, err)
	assert.Equal(t, stream.ID{Timestamp: 1_700_000_000_000, Sequence: 3}, msg.ID)
	assert.Equal(t, map[string]string{"order": "123", "state": "created"}, msg.Fields)
}

func TestMessage_Errors(t *testing.T) {
	_, err := Message(redis.XMessage{ID: "garbage", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = Message(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"n": 42},
	})
	assert.Error(t, err, "non-string field values must be rejected")
}

func TestMessages_PreservesOrder(t *testing.T) {
	msgs, err := Messages([]redis.XMessage{
		{ID: "1-1", Values: map[string]interface{}{"a": "1"}},
		{ID: "1-2", Values: map[string]interface{}{"b": "2"}},
		{ID: "2-0", Values: map[string]interface{}{"c": "3"}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].ID.After(msgs[i-1].ID))
	}
}

func TestPendingEntry(t *testing.T) {
	entry, err := PendingEntry(redis.XPendingExt{
		ID:         "1700000000000-7",
		Consumer:   "worker-1",
		Idle:       90 * time.Second,
		RetryCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, stream.PendingEntry{
		ID:            stream.ID{Timestamp: 1_700_000_000_000, Sequence: 7},
		Consumer:      "worker-1",
		Idle:          90 * time.Second,
		DeliveryCount: 3,
	}, entry)

	_, err = PendingEntry(redis.XPendingExt{ID: "garbage"})
	assert.Error(t, err)
}

func TestFieldValues(t *testing.T) {
	values := FieldValues([]stream.Field{
		{Key: "first", Value: "1"},
		{Key: "second", Value: "2"},
	})
	assert.Equal(t, []any{"first", "1", "second", "2"}, values)

	assert.Empty(t, FieldValues(nil))
}
