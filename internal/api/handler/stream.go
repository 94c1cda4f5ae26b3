package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api/models"
	"github.com/breatheroute/wayfinder/internal/api/response"
	"github.com/breatheroute/wayfinder/internal/events"
	"github.com/breatheroute/wayfinder/internal/navigation"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxStreamFrame  = 4096
	streamReplySize = 8
)

// Subscriptions hands out per-session update channels. *events.Hub satisfies it.
type Subscriptions interface {
	Register(sessionID string) *events.Subscriber
	Unregister(sub *events.Subscriber)
}

// StreamHandler serves the session websocket. The phone relay sends fixes
// up; snapshots and lifecycle events come down.
type StreamHandler struct {
	sessions Sessions
	subs     Subscriptions
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStreamHandler creates a StreamHandler. Origins are not checked: callers
// authenticate with a device token, not cookies.
func NewStreamHandler(sessions Sessions, subs Subscriptions, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		subs:     subs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
	}
}

// streamError is the payload of an "error" frame.
type streamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream handles GET /v1/navigation/sessions/{sessionId}/stream. It blocks
// until the client goes away so the access log covers the whole stream.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	info, err := h.sessions.Get(id)
	if err != nil {
		if errors.Is(err, navigation.ErrSessionNotFound) {
			response.NotFound(w, r, "navigation session not found")
			return
		}
		response.InternalError(w, r, "an unexpected error occurred")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Str("session_id", id).Msg("stream upgrade failed")
		return
	}

	logger := h.logger.With().
		Str("session_id", id).
		Str("device_id", GetDeviceID(r.Context())).
		Logger()

	sub := h.subs.Register(id)
	replies := make(chan []byte, streamReplySize)
	writerDone := make(chan struct{})

	if frame, err := encodeFrame("snapshot", info.Snapshot); err == nil {
		replies <- frame
	}

	go h.writeLoop(conn, sub, replies, writerDone, logger)
	logger.Info().Msg("stream connected")

	h.readLoop(conn, id, replies, writerDone, logger)

	h.subs.Unregister(sub)
	<-writerDone
	_ = conn.Close()
	logger.Info().Msg("stream disconnected")
}

// writeLoop is the connection's only writer. It exits when the subscription
// is closed or a write fails.
func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub *events.Subscriber, replies <-chan []byte, done chan<- struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	write := func(msgType int, data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(msgType, data); err != nil {
			logger.Debug().Err(err).Msg("stream write failed")
			// Unblock the reader.
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case msg, ok := <-sub.Send:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !write(websocket.TextMessage, msg) {
				return
			}
		case msg := <-replies:
			if !write(websocket.TextMessage, msg) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// readLoop applies inbound fixes until the connection fails or closes.
func (h *StreamHandler) readLoop(conn *websocket.Conn, id string, replies chan<- []byte, writerDone <-chan struct{}, logger zerolog.Logger) {
	conn.SetReadLimit(maxStreamFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(code, message string) {
		frame, err := encodeFrame("error", streamError{Code: code, Message: message})
		if err != nil {
			return
		}
		select {
		case replies <- frame:
		case <-writerDone:
		default:
			logger.Debug().Str("code", code).Msg("stream reply dropped")
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("stream closed unexpectedly")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg models.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			reply("bad_frame", "frame is not valid JSON")
			continue
		}

		switch msg.Type {
		case "ping":
			if frame, err := encodeFrame("pong", nil); err == nil {
				select {
				case replies <- frame:
				default:
				}
			}
		case "fix":
			if msg.Fix == nil {
				reply("bad_fix", "fix is required")
				continue
			}
			if errs := msg.Fix.Validate(); len(errs) > 0 {
				reply("bad_fix", errs[0].Field+" "+errs[0].Message)
				continue
			}
			err := h.sessions.Enqueue(id, toFix(*msg.Fix, h.now))
			switch {
			case err == nil:
			case errors.Is(err, navigation.ErrFixQueueFull):
				reply("queue_full", "fix dropped, queue is full")
			case errors.Is(err, navigation.ErrSessionNotFound), errors.Is(err, navigation.ErrRunnerClosed):
				reply("session_gone", "navigation session no longer exists")
				return
			default:
				reply("fix_failed", err.Error())
			}
		default:
			reply("bad_frame", "unknown frame type")
		}
	}
}

func encodeFrame(kind string, v any) ([]byte, error) {
	var payload json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return json.Marshal(events.Message{Kind: kind, Payload: payload})
}
