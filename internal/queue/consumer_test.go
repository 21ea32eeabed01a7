package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	kind, _ := msg.Values["type"].(string)
	h.seen = append(h.seen, kind)
	if h.fail[kind] {
		return errors.New("boom")
	}
	return nil
}

func newConsumer(t *testing.T, h MessageHandler) (*Consumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewConsumer(client, "events", "workers", "w1", time.Minute, zerolog.Nop(), h)
	c.block = 10 * time.Millisecond
	return c, client
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	c, _ := newConsumer(t, &recordingHandler{})
	ctx := context.Background()
	require.NoError(t, c.EnsureGroup(ctx))
	require.NoError(t, c.EnsureGroup(ctx))
}

func TestReadAcksHandledMessages(t *testing.T) {
	h := &recordingHandler{fail: map[string]bool{"bad": true}}
	c, client := newConsumer(t, h)
	ctx := context.Background()
	require.NoError(t, c.EnsureGroup(ctx))

	for _, kind := range []string{"audit", "bad", "cleanup"} {
		require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "events", Values: map[string]any{"type": kind}}).Err())
	}

	acked, err := c.read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, acked)
	assert.Equal(t, []string{"audit", "bad", "cleanup"}, h.seen)

	pending, err := client.XPending(ctx, "events", "workers").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count)
}

func TestStartStopsOnCancel(t *testing.T) {
	c, _ := newConsumer(t, &recordingHandler{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
