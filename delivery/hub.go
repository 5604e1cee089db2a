// Package delivery drains the engine's outbound notification queue and
// pushes notifications to connected assistant UIs over WebSocket. It is the
// delivery channel of the engine, not part of its correctness: dedup and
// at-most-once emission are settled before a notification reaches the hub.
package delivery

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/engine/notify"
)

// WebSocket timeout constants following Gorilla best practices.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// clientBufferSize is the per-client send buffer; a client that cannot keep
// up is disconnected rather than allowed to stall the hub.
const clientBufferSize = 32

// Hub fans notifications out to connected clients.
type Hub struct {
	allowedOrigins []string
	log            *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan *notify.Notification
}

// NewHub creates a delivery hub.
func NewHub(allowedOrigins []string, log *zap.SugaredLogger) *Hub {
	return &Hub{
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
		log:            log.Named("delivery"),
	}
}

// Run drains the outbound queue until ctx is cancelled, broadcasting each
// notification to every connected client. Notifications arriving while no
// client is connected are dropped; the engine's ledger already recorded
// them as emitted, so reconnecting clients do not see replays.
func (h *Hub) Run(ctx context.Context, outbound <-chan *notify.Notification) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case notif, ok := <-outbound:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(notif)
		}
	}
}

func (h *Hub) broadcast(notif *notify.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- notif:
		default:
			// Slow client; drop it rather than block delivery.
			h.log.Warnw("Disconnecting slow delivery client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades a connection and streams notifications to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan *notify.Notification, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Infow("Delivery client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// checkOrigin validates the Origin header against configured origins.
// No origin (direct WebSocket clients) is allowed.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}
	for _, allowed := range h.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case notif, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(notif); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound messages; its job is detecting disconnects and
// keeping the pong deadline fresh.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
