// Package transport carries the wire protocol over websockets: a hub of
// live connections grouped into per-session rooms, and the HTTP endpoint
// that upgrades player sockets.
package transport

import (
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type conn struct {
	actor domain.Actor
	ws    *websocket.Conn
	send  chan arenadto.Message
	done  chan struct{}
	once  sync.Once
}

func (c *conn) id() string { return c.actor.ConnID }

// close is safe to call from any goroutine and more than once.
func (c *conn) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close(code, reason)
		}
	})
}

// Hub routes outbound messages. It never blocks the caller: a connection
// whose buffer is full is dropped.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*conn
	rooms  map[string]map[string]struct{}
	logger *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*conn),
		rooms:  make(map[string]map[string]struct{}),
		logger: obslog.Named("hub"),
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Send(connID string, msg arenadto.Message) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c != nil {
		h.enqueue(c, msg)
	}
}

// Publish sends msg to every connection subscribed to room.
func (h *Hub) Publish(room string, msg arenadto.Message) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if c := h.conns[id]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, msg)
	}
}

func (h *Hub) Subscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) Unsubscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, connID)
}

// Members reports how many connections are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close drops every connection with a going-away status.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) enqueue(c *conn, msg arenadto.Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("ws_slow_consumer",
			zap.String("conn_id", c.id()),
			zap.String("user_id", c.actor.UserID),
			zap.String("type", msg.Type),
		)
		c.close(websocket.StatusPolicyViolation, "send buffer full")
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id()] = c
	h.mu.Unlock()
	metrics.Connections.Inc()
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if cur, ok := h.conns[c.id()]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id())
	for room := range h.rooms {
		h.leave(room, c.id())
	}
	h.mu.Unlock()
	metrics.Connections.Dec()
}

// leave requires h.mu held.
func (h *Hub) leave(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
