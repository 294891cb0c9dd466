package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/steveyegge/authcap/internal/supervisor"
)

// EventSnapshot is the first message of every stream: the status at the
// time the client connected.
const EventSnapshot supervisor.EventType = "snapshot"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Hub fans supervisor events out to websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   func(format string, args ...interface{})

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates an empty hub.
func NewHub(logger func(format string, args ...interface{})) *Hub {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: map[*wsClient]struct{}{},
	}
}

// Observe is a supervisor.Observer broadcasting every event.
func (h *Hub) Observe(ev supervisor.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger("web: encoding event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop it rather than block the supervisor.
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeWS upgrades the request and streams events, starting with a
// snapshot. The client is registered before snapshot is called, so no event
// published in between is lost.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, snapshot func() supervisor.Status) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger("web: websocket upgrade: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	// Observe blocks on h.mu, so the snapshot is queued ahead of any event.
	first, err := json.Marshal(supervisor.Event{Type: EventSnapshot, Status: snapshot()})
	if err != nil {
		delete(h.clients, c)
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.send <- first
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
