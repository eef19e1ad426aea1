package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Cross4solution/MedGama-sub003/internal/events"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
)

const (
	wsKind       = "changes"
	wsRoutingKey = "ws_events.changes"
	writeWait    = 5 * time.Second
)

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	info ConnInfo
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans change notifications out to websocket observers.
type Hub struct {
	clients map[*websocket.Conn]*client
	mu      sync.RWMutex
	unsub   []func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// Attach subscribes the hub to every change event on bus.
func (h *Hub) Attach(bus events.Bus) {
	for _, event := range []string{events.InvitesChanged, events.ConnectionsChanged} {
		event := event
		h.unsub = append(h.unsub, bus.Subscribe(event, func() { h.Broadcast(event) }))
	}
}

// Detach removes the bus subscriptions.
func (h *Hub) Detach() {
	for _, unsub := range h.unsub {
		unsub()
	}
	h.unsub = nil
}

// AddClient registers a websocket observer.
func (h *Hub) AddClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = &client{conn: conn, info: info}
}

// RemoveClient drops a websocket observer.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Count reports the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a {"type": event} frame to every observer.
func (h *Hub) Broadcast(event string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(models.ChangeEvent{Type: event})
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			log.Printf("websocket write error conn_id=%s: %v", c.info.ConnID, err)
			c.conn.Close()
			h.RemoveClient(c.conn)
			h.publishWSError(c.info, err)
		}
	}
	observability.IncWSEvent(wsKind, event)
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	_ = observability.PublishEvent(context.Background(), wsRoutingKey,
		observability.WSEvent("ws_error", info.ConnID, err.Error(), time.Since(info.ConnectedAt).Milliseconds(), info.identity()))
	observability.IncWSEvent(wsKind, "ws_error")
}
