package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/uuid"
)

// WebSocket event types.
const (
	EventNotesChanged = "notes.changed"

	EventSyncStarted          = "sync.started"
	EventSyncCompleted        = "sync.completed"
	EventSyncFailed           = "sync.failed"
	EventSyncConflictDetected = "sync.conflict_detected"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Envelope wraps all WebSocket messages.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// client is one WebSocket connection.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu            sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive events of type t. A client
// with no subscriptions receives everything.
func (c *client) wants(t string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type message struct {
	eventType string
	payload   []byte
}

// Hub maintains active client connections and broadcasts events to them.
type Hub struct {
	clients    map[string]*client
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	origins  map[string]bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins permits cross-origin connections from the given hosts.
// Same-host connections and clients without an Origin header are always allowed.
func WithAllowedOrigins(hosts ...string) HubOption {
	return func(h *Hub) {
		for _, host := range hosts {
			h.origins[host] = true
		}
	}
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan message, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		origins:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || h.origins[u.Host] || h.origins[u.Hostname()]
}

// Run manages client connections and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected", map[string]interface{}{"client_id": c.id, "total": total})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected", map[string]interface{}{"client_id": c.id, "total": total})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				if !c.wants(msg.eventType) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// send buffer full, drop the slow client
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every subscribed client. It never blocks; when
// the queue is full the event is dropped.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	b, err := json.Marshal(Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logging.Error("Failed to marshal WebSocket event", err, map[string]interface{}{"type": eventType})
		return
	}

	select {
	case h.broadcast <- message{eventType: eventType, payload: b}:
	default:
		logging.Warn("WebSocket broadcast queue full, dropping event", map[string]interface{}{"type": eventType})
	}
}

// Relay broadcasts EventNotesChanged for every signal from n until ctx is done.
func (h *Hub) Relay(ctx context.Context, n *Notifier) {
	n.Listen(ctx, func() {
		h.Broadcast(EventNotesChanged, nil)
	})
}

// BroadcastSyncStarted notifies clients that a pull has started.
func (h *Hub) BroadcastSyncStarted() {
	h.Broadcast(EventSyncStarted, map[string]interface{}{"status": "started"})
}

// BroadcastSyncCompleted notifies clients that a pull completed.
func (h *Hub) BroadcastSyncCompleted(applied, conflicts int, duration time.Duration) {
	h.Broadcast(EventSyncCompleted, map[string]interface{}{
		"applied":   applied,
		"conflicts": conflicts,
		"duration":  duration.Milliseconds(),
		"status":    "completed",
	})
}

// BroadcastSyncFailed notifies clients that a pull failed.
func (h *Hub) BroadcastSyncFailed(errorCode string) {
	h.Broadcast(EventSyncFailed, map[string]interface{}{
		"error_code": errorCode,
		"status":     "failed",
	})
}

// BroadcastSyncConflictDetected notifies clients that reconciliation overwrote local records.
func (h *Hub) BroadcastSyncConflictDetected(conflicts []map[string]interface{}) {
	h.Broadcast(EventSyncConflictDetected, map[string]interface{}{
		"conflicts":  conflicts,
		"resolution": "last_write_wins",
	})
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnErr("WebSocket upgrade failed", err)
		return
	}

	c := &client{
		id:            uuid.New(),
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		hub:           h,
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump pumps messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.WarnErr("WebSocket read error", err, map[string]interface{}{"client_id": c.id})
			}
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})

		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()

		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// reply queues a direct response to this client. It is dropped when the
// client's buffer is full.
func (c *client) reply(body map[string]interface{}) {
	body["timestamp"] = time.Now().UnixMilli()
	b, err := json.Marshal(body)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
