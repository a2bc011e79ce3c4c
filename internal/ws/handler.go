package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xao-fun/xao-go/internal/metrics"
	"github.com/xao-fun/xao-go/internal/referral"
)

const hydrateLimit = 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// History supplies recent verifications to newly connected clients.
type History interface {
	RecentVerifications(ctx context.Context, limit int) ([]referral.Verification, error)
}

// sendBuffer is how many frames may queue for one client before it is
// dropped as too slow.
const sendBuffer = 64

// client owns a send queue drained by its own writer goroutine, so
// broadcasting never waits on a socket.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer)}
}

// enqueue queues msg without blocking. It reports false when the client is
// closed or its queue is full.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

// Manager tracks live-feed connections and broadcasts verifications.
type Manager struct {
	mu      sync.RWMutex
	clients []*client
	history History
	logger  *slog.Logger
}

// NewManager creates a feed manager. history may be nil.
func NewManager(history History, logger *slog.Logger) *Manager {
	return &Manager{history: history, logger: logger}
}

// HandleWS upgrades an HTTP connection to WebSocket and registers it.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	c := newClient(conn)
	go m.writeLoop(c)

	// Hydrate before registering so history precedes live frames.
	m.hydrate(r.Context(), c)
	m.register(c)

	defer func() {
		m.remove(c)
		c.close()
	}()

	// Keep connection alive, read messages (we ignore them)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (m *Manager) hydrate(ctx context.Context, c *client) {
	if m.history == nil {
		return
	}
	recent, err := m.history.RecentVerifications(ctx, hydrateLimit)
	if err != nil {
		m.logger.Warn("feed hydration failed", "err", err)
		return
	}
	// Oldest first, like a log.
	for i := len(recent) - 1; i >= 0; i-- {
		msg, err := json.Marshal(frame(&recent[i]))
		if err != nil || !c.enqueue(msg) {
			return
		}
	}
}

// writeLoop sends queued frames until the client is closed.
func (m *Manager) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.logger.Debug("dropping feed client", "err", err)
			m.remove(c)
			c.close()
		}
	}
}

// NotifyVerification broadcasts v to every connected client.
func (m *Manager) NotifyVerification(v *referral.Verification) {
	m.Broadcast(frame(v))
}

// Broadcast queues a message for every connected client without waiting on
// any socket. Clients whose queue is full are dropped.
func (m *Manager) Broadcast(data map[string]any) {
	msg, err := json.Marshal(data)
	if err != nil {
		m.logger.Error("encode feed frame", "err", err)
		return
	}

	m.mu.RLock()
	clients := make([]*client, len(m.clients))
	copy(clients, m.clients)
	m.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(msg) {
			m.logger.Warn("dropping slow feed client")
			m.remove(c)
			c.close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) register(c *client) {
	m.mu.Lock()
	m.clients = append(m.clients, c)
	m.mu.Unlock()
	metrics.FeedClients.Inc()
}

// remove unregisters c. Closing it is left to the caller.
func (m *Manager) remove(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.clients {
		if existing == c {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			metrics.FeedClients.Dec()
			return
		}
	}
}

func frame(v *referral.Verification) map[string]any {
	f := map[string]any{
		"type":        "verification",
		"id":          v.ID.String(),
		"outcome":     v.Outcome(),
		"provider":    v.Provider,
		"model":       v.Model,
		"attempts":    v.Attempts,
		"duration_ms": v.DurationMs,
		"created_at":  v.CreatedAt.Format(time.RFC3339),
	}
	if v.Result != nil {
		f["verified"] = v.Result.Verified
		f["confidence"] = v.Result.Confidence
		f["reasoning"] = v.Result.Reasoning
	} else {
		f["error_kind"] = string(v.ErrorKind)
		f["error"] = v.Error
	}
	return f
}
