package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, "handled:", time.Hour), mr
}

func TestRedisIdempotencyStore_MarkAndSeen(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "evt-1"))
	seen, err = store.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("handled:evt-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store, _ := newRedisStore(t)
	calls := 0
	h := IdempotentHandler(store, "topic", func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	event := &Event{EventID: "evt-7", EventType: "user.profile.created"}
	require.NoError(t, h(context.Background(), event))
	require.NoError(t, h(context.Background(), event))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_FailureNotMarked(t *testing.T) {
	store, _ := newRedisStore(t)
	calls := 0
	h := IdempotentHandler(store, "topic", func(context.Context, *Event) error {
		calls++
		if calls == 1 {
			return errors.New("boom")
		}
		return nil
	}, testLogger())

	event := &Event{EventID: "evt-8", EventType: "x"}
	require.Error(t, h(context.Background(), event))
	require.NoError(t, h(context.Background(), event))
	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_StoreDownProcessesAnyway(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	calls := 0
	h := IdempotentHandler(store, "topic", func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), &Event{EventID: "evt-9", EventType: "x"}))
	assert.Equal(t, 1, calls)
}
