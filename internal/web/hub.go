package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// MessageType names a websocket event.
type MessageType string

const (
	MessageTypeHello        MessageType = "hello"
	MessageTypeSyncComplete MessageType = "sync_complete"
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HubOptions configures an EventHub.
type HubOptions struct {
	// AllowedOrigins are host patterns accepted in the Origin header.
	// Empty means same-origin only.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// EventHub fans completed sync results out to websocket clients.
// It implements core.Notifier.
type EventHub struct {
	origins []string
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	broadcast chan Message
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEventHub starts a hub. Close stops it.
func NewEventHub(opts HubOptions) *EventHub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &EventHub{
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// SyncCompleted broadcasts a run result.
func (h *EventHub) SyncCompleted(result core.SyncResult) {
	data, err := json.Marshal(result)
	if err != nil {
		h.logger.Warn("marshal sync result", "error", err)
		return
	}
	h.Broadcast(Message{Type: MessageTypeSyncComplete, Data: data})
}

// Broadcast queues msg for every client. Messages are dropped when the
// queue is full.
func (h *EventHub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "clients", count)

	hello, _ := json.Marshal(map[string]int{"clients": count})
	h.write(conn, Message{Type: MessageTypeHello, Timestamp: time.Now().UTC(), Data: hello})

	go h.readLoop(conn)
}

// Close disconnects every client and stops the broadcast loop.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		h.wg.Wait()

		h.mu.Lock()
		for conn := range h.clients {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(h.clients, conn)
		}
		h.mu.Unlock()
	})
}

func (h *EventHub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()

			for _, conn := range conns {
				h.write(conn, msg)
			}
		}
	}
}

func (h *EventHub) write(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("marshal websocket message", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("websocket write failed", "error", err)
		h.remove(conn)
	}
}

// readLoop discards client frames and notices disconnects.
func (h *EventHub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *EventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("websocket client disconnected", "clients", count)
	}
}
