package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix = "wayfinder:session:"
	channelSuffix = ":updates"
)

// Message is the envelope sent to stream subscribers.
type Message struct {
	Kind    string          `json:"kind"` // "event" or "snapshot"
	Payload json.RawMessage `json:"payload"`
}

// Subscriber receives messages for one session.
type Subscriber struct {
	SessionID string
	Send      chan []byte
}

// HubConfig holds configuration for a Hub.
type HubConfig struct {
	// Redis enables fan-out across API instances. Nil keeps delivery local.
	Redis *redis.Client

	// BufferSize is the per-subscriber channel size (default: 64).
	BufferSize int

	Logger zerolog.Logger
}

// Hub fans session updates out to websocket subscribers. With redis every
// broadcast goes through a pattern subscription so all instances (this one
// included) deliver it exactly once; without redis delivery is local.
type Hub struct {
	redis  *redis.Client
	logger zerolog.Logger
	buffer int

	mu      sync.RWMutex
	clients map[string]map[*Subscriber]struct{}

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewHub creates a hub. When redis is configured the pattern subscription is
// confirmed before NewHub returns; if that fails the hub falls back to local
// delivery.
func NewHub(ctx context.Context, cfg HubConfig) *Hub {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 64
	}

	h := &Hub{
		logger:  cfg.Logger,
		buffer:  buffer,
		clients: map[string]map[*Subscriber]struct{}{},
		done:    make(chan struct{}),
	}

	if cfg.Redis == nil {
		close(h.done)
		return h
	}

	ps := cfg.Redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	if _, err := ps.Receive(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("redis subscribe failed, using local delivery")
		_ = ps.Close()
		close(h.done)
		return h
	}

	h.redis = cfg.Redis
	h.pubsub = ps
	go h.forward()
	return h
}

// Register adds a subscriber for sessionID.
func (h *Hub) Register(sessionID string) *Subscriber {
	sub := &Subscriber{
		SessionID: sessionID,
		Send:      make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Subscriber]struct{}{}
	}
	h.clients[sessionID][sub] = struct{}{}
	return sub
}

// Unregister removes a subscriber and closes its channel. It is safe to call twice.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[sub.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[sub]; !ok {
		return
	}
	delete(clients, sub)
	if len(clients) == 0 {
		delete(h.clients, sub.SessionID)
	}
	close(sub.Send)
}

// Subscribers returns the number of local subscribers for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Broadcast sends payload to every subscriber of sessionID. A failed redis
// publish falls back to local delivery.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(ctx, redisChannel(sessionID), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("redis publish failed")
	}
	h.deliver(sessionID, payload)
}

// BroadcastJSON wraps v in a Message of the given kind and broadcasts it.
func (h *Hub) BroadcastJSON(ctx context.Context, sessionID, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", kind, err)
	}
	msg, err := json.Marshal(Message{Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	h.Broadcast(ctx, sessionID, msg)
	return nil
}

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	return h.BroadcastJSON(ctx, e.SessionID, "event", e)
}

// Close stops the redis subscription.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	return err
}

// deliver drops messages for subscribers whose buffer is full.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.clients[sessionID] {
		select {
		case sub.Send <- payload:
		default:
			h.logger.Debug().Str("session_id", sessionID).Msg("subscriber buffer full, dropping message")
		}
	}
}

func (h *Hub) forward() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		h.deliver(sessionID, []byte(msg.Payload))
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}

var _ Publisher = (*Hub)(nil)
