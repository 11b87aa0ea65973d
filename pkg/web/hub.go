package web

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greg-hellings/portal/pkg/state"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub fans controller changes out to connected pages.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	// last published values, used to emit only what changed
	published   bool
	lastStatus  string
	lastLoading bool
	lastPopup   bool
	lastState   StatePayload
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// ServeWS upgrades the request and registers the connection. initial
// messages are queued before any broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial ...Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade connection", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan Message, sendBuffer)}
	for _, msg := range initial {
		c.enqueue(msg)
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues msg for every client. Clients whose buffer is full miss it.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg)
}

// sendTo queues msg for c if it is still registered.
func (h *Hub) sendTo(c *client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		c.enqueue(msg)
	}
}

func (h *Hub) broadcastLocked(msg Message) {
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// Publish is a state.Listener. It emits status, loading and ready messages
// for the fields that changed since the previous snapshot, and a state
// message when the selection or modals changed.
func (h *Hub) Publish(v state.View) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := !h.published
	h.published = true

	if first || v.Status != h.lastStatus {
		h.lastStatus = v.Status
		h.broadcastLocked(NewStatusMessage(v.Status))
	}
	if first || v.Loading != h.lastLoading {
		h.lastLoading = v.Loading
		h.broadcastLocked(NewLoadingMessage(v.Loading))
	}
	if v.Popup && (first || !h.lastPopup) {
		h.broadcastLocked(NewReadyMessage(v.Repos))
	}
	h.lastPopup = v.Popup

	sp := statePayload(v)
	if first || sp != h.lastState {
		h.lastState = sp
		h.broadcastLocked(newMessage(TypeState, sp))
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *client) enqueue(msg Message) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("WebSocket send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("Error writing WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket error", "error", err)
			}
			return
		}

		switch msg.Type {
		case TypePing:
			c.hub.sendTo(c, Message{Type: TypePong})
		default:
			slog.Debug("Ignoring WebSocket message", "type", msg.Type)
		}
	}
}
