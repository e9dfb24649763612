package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newConn(userID string, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *conn) close() { c.once.Do(func() { close(c.done) }) }

// Hub tracks authenticated push connections per user and delivers events to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*conn]struct{}
	cfg   config.PushConfig
	log   *zerolog.Logger
}

func NewHub(cfg config.PushConfig, logger *zerolog.Logger) *Hub {
	l := logger.With().Str("component", "PushHub").Logger()
	return &Hub{conns: make(map[string]map[*conn]struct{}), cfg: cfg, log: &l}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.PushConnected()
	h.log.Debug().Str("user_id", c.userID).Str("conn_id", c.id).Msg("connection registered")
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	set := h.conns[c.userID]
	_, present := set[c]
	if present {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
	if present {
		metrics.PushDisconnected()
		h.log.Debug().Str("user_id", c.userID).Str("conn_id", c.id).Msg("connection removed")
	}
}

// Count returns the number of live connections for userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Deliver queues ev on every connection of ev.UserID. Offline users are skipped.
// A connection whose queue stays full past the send timeout is closed.
func (h *Hub) Deliver(ctx context.Context, ev model.OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[ev.UserID]))
	for c := range h.conns[ev.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		metrics.IncPushEvent(string(ev.Type), "offline")
		return nil
	}
	for _, c := range targets {
		if h.enqueue(ctx, c, data) {
			metrics.IncPushEvent(string(ev.Type), "delivered")
			continue
		}
		metrics.IncPushEvent(string(ev.Type), "dropped")
		h.log.Warn().Str("user_id", c.userID).Str("conn_id", c.id).Str("event", string(ev.Type)).
			Msg("slow push consumer, closing connection")
		h.unregister(c)
	}
	return nil
}

func (h *Hub) enqueue(ctx context.Context, c *conn, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
	}
	timer := time.NewTimer(h.cfg.SendTimeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-c.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	return false
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*conn
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

// writePump is the only writer on c.ws once the connection is registered.
func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteWait))
			return
		}
	}
}

// readPump keeps the read side alive for pongs and close frames. Client payloads are ignored.
func (h *Hub) readPump(c *conn) {
	defer h.unregister(c)
	pongWait := 2 * h.cfg.PingPeriod
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
