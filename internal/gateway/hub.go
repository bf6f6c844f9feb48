package gateway

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playcohq/playco/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// ConnectionHandler receives decoded traffic from the hub. The gateway
// implements it; the split keeps the websocket plumbing free of event
// semantics.
type ConnectionHandler interface {
	HandleEvent(connID string, raw []byte)
	HandleDisconnect(connID string)
}

// Hub owns the websocket connections. Each connection gets a server-assigned
// id announced in the hello event; all higher layers address connections by
// that id only.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	upgrader websocket.Upgrader
	handler  ConnectionHandler
	log      *zap.Logger
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
		log: logger.WithModule("gateway.hub"),
	}
}

// SetHandler wires the event handler. Must be called before Serve.
func (h *Hub) SetHandler(handler ConnectionHandler) {
	h.handler = handler
}

// Serve upgrades the HTTP connection, assigns a connection id and runs the
// read pump until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		hub:    h,
		socket: socket,
		id:     uuid.NewString(),
		send:   make(chan ServerEvent, defaultBufferSize),
	}

	h.mu.Lock()
	h.conns[client.id] = client
	h.mu.Unlock()

	go client.writeLoop()

	// The client needs its connection id to request a channel token.
	h.Send(client.id, ServerEvent{
		Event: EventHello,
		Data:  map[string]any{"connection_id": client.id},
	})

	client.readLoop()
}

// Send enqueues an event for one connection. Returns false when the
// connection is gone or was closed for backpressure. The read lock is held
// across the enqueue: close() must unregister under the write lock before it
// can close the channel, so the channel cannot be closed mid-send.
func (h *Hub) Send(connID string, event ServerEvent) bool {
	h.mu.RLock()
	client, ok := h.conns[connID]
	if !ok {
		h.mu.RUnlock()
		return false
	}

	select {
	case client.send <- event:
		h.mu.RUnlock()
		return true
	default:
		// close() needs the write lock; release before taking it.
		h.mu.RUnlock()
		h.log.Warn("closing backpressure connection", zap.String("conn_id", connID))
		client.close()
		return false
	}
}

// Broadcast delivers an event to each of the supplied connections.
func (h *Hub) Broadcast(connIDs []string, event ServerEvent) {
	for _, connID := range connIDs {
		h.Send(connID, event)
	}
}

// Announce delivers an event to every live connection.
func (h *Hub) Announce(event ServerEvent) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	h.Broadcast(ids, event)
}

// Disconnect force-closes a connection.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		client.close()
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	_, present := h.conns[client.id]
	delete(h.conns, client.id)
	h.mu.Unlock()

	if present && h.handler != nil {
		h.handler.HandleDisconnect(client.id)
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	id     string
	send   chan ServerEvent
	once   sync.Once
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("conn_id", c.id), zap.Error(err))
			}
			break
		}

		if len(payload) == 0 {
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleEvent(c.id, payload)
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
