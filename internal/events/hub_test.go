package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscriber) []byte {
	t.Helper()
	select {
	case msg := <-sub.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for message on %s", sub.SessionID)
		return nil
	}
}

func TestHub_LocalBroadcast(t *testing.T) {
	hub := NewHub(context.Background(), HubConfig{Logger: zerolog.Nop()})
	defer hub.Close()

	sub := hub.Register("session-1")
	other := hub.Register("session-2")
	defer hub.Unregister(sub)
	defer hub.Unregister(other)

	hub.Broadcast(context.Background(), "session-1", []byte("hello"))

	assert.Equal(t, "hello", string(receive(t, sub)))
	select {
	case <-other.Send:
		t.Fatal("other session must not receive the message")
	default:
	}
}

func TestHub_UnregisterClosesOnce(t *testing.T) {
	hub := NewHub(context.Background(), HubConfig{})
	sub := hub.Register("session-1")
	assert.Equal(t, 1, hub.Subscribers("session-1"))

	hub.Unregister(sub)
	hub.Unregister(sub)

	_, ok := <-sub.Send
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, hub.Subscribers("session-1"))
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub(context.Background(), HubConfig{BufferSize: 1})
	sub := hub.Register("session-1")
	defer hub.Unregister(sub)

	hub.Broadcast(context.Background(), "session-1", []byte("first"))
	hub.Broadcast(context.Background(), "session-1", []byte("second"))

	assert.Equal(t, "first", string(receive(t, sub)))
	assert.Len(t, sub.Send, 0)
}

func TestHub_PublishEvent(t *testing.T) {
	hub := NewHub(context.Background(), HubConfig{})
	sub := hub.Register("session-1")
	defer hub.Unregister(sub)

	e := New(TypeArrived, "session-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, hub.Publish(context.Background(), e))

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, sub), &msg))
	assert.Equal(t, "event", msg.Kind)

	got, err := Decode(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestHub_RedisFanOut(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	// Two hubs stand in for two API instances sharing redis.
	a := NewHub(context.Background(), HubConfig{Redis: client})
	defer a.Close()
	b := NewHub(context.Background(), HubConfig{Redis: client})
	defer b.Close()

	subA := a.Register("session-redis")
	defer a.Unregister(subA)
	subB := b.Register("session-redis")
	defer b.Unregister(subB)

	a.Broadcast(context.Background(), "session-redis", []byte("ping"))

	assert.Equal(t, "ping", string(receive(t, subA)))
	assert.Equal(t, "ping", string(receive(t, subB)))

	// Exactly once on the publishing instance.
	select {
	case msg := <-subA.Send:
		t.Fatalf("unexpected duplicate %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RedisUnavailableFallsBack(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	s.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	hub := NewHub(ctx, HubConfig{Redis: client, Logger: zerolog.Nop()})
	defer hub.Close()
	sub := hub.Register("session-bad")
	defer hub.Unregister(sub)

	hub.Broadcast(context.Background(), "session-bad", []byte("ping"))
	assert.Equal(t, "ping", string(receive(t, sub)))
}

func TestChannelHelpers(t *testing.T) {
	ch := redisChannel("abc")
	assert.Equal(t, "wayfinder:session:abc:updates", ch)
	assert.Equal(t, "abc", sessionIDFromChannel(ch))
	assert.Empty(t, sessionIDFromChannel("bad"))
	assert.Empty(t, sessionIDFromChannel("wayfinder:session::updates"))
}
