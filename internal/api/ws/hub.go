package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/vtrack/internal/observability"
	"github.com/your-org/vtrack/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// observer is one connected event-feed client.
type observer struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string // optional filter
}

// Hub fans track events out to observer WebSocket clients.
type Hub struct {
	clients    map[*observer]bool
	broadcast  chan []byte
	register   chan *observer
	unregister chan *observer
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*observer]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *observer),
		unregister: make(chan *observer),
	}
}

// Run is the hub event loop. It owns the client set; ctx cancellation stops
// the loop and closes every connected observer. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("observer connected", "filter", client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()
			slog.Debug("observer disconnected")

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
	}
}

func (h *Hub) deliver(message []byte) {
	var evt dto.WSEvent
	filterable := json.Unmarshal(message, &evt) == nil

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.sessionID != "" && filterable && evt.SessionID != client.sessionID {
			continue
		}
		select {
		case client.send <- message:
		default:
			// Slow observer; drop the connection rather than buffer.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// BroadcastEvent sends a track event to all subscribed observers.
func (h *Hub) BroadcastEvent(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("observer broadcast queue full, dropping event", "type", event.Type)
	}
}

// HandleWS upgrades an observer connection. session_id filters the feed to
// one camera.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &observer{
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: c.Query("session_id"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (o *observer) writePump() {
	defer o.conn.Close()
	for msg := range o.send {
		if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (o *observer) readPump(h *Hub) {
	defer func() {
		h.unregister <- o
		o.conn.Close()
	}()

	for {
		// Observers never send anything meaningful; this loop exists to
		// detect disconnection.
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}
