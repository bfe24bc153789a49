package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"poll-service/internal/events"

	"github.com/gorilla/websocket"
)

var ErrClientNotFound = errors.New("client not found")

const (
	statsInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

// MessageHandler processes inbound messages and connection teardown.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message)
	HandleDisconnect(connID string)
}

// Hub tracks connected clients and fans events out to them. It implements events.Gateway.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	handler MessageHandler

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

var _ events.Gateway = (*Hub)(nil)

func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetHandler installs the inbound message handler. It must be called before ServeWS.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) messageHandler() MessageHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// Run logs connection stats until Stop is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.logger.Debug("WebSocket hub stats", "clients", h.Count())
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop closes every connection and waits briefly for their goroutines.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeSend()
	}
	for _, c := range clients {
		c.wait(shutdownTimeout)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("Client registered", "clientID", c.id)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	handler := h.handler
	h.mu.Unlock()

	if !ok {
		return
	}
	c.closeSend()
	if handler != nil {
		handler.HandleDisconnect(c.id)
	}
	h.logger.Info("Client unregistered", "clientID", c.id)
}

// Publish sends the event to every connected client. Clients whose buffer is full are dropped.
func (h *Hub) Publish(event events.Name, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if err := c.enqueue(data); err != nil {
			h.logger.Debug("Failed to queue broadcast", "event", event, "clientID", c.id, "error", err)
		}
	}
}

// PublishTo sends the event to a single connection.
func (h *Hub) PublishTo(connID string, event events.Name, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}

	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Disconnect closes a connection after everything already queued for it has been written.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.closeSend()
	}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(h, conn)
	h.registerClient(client)
	client.start()
}

func encode(event events.Name, payload any) ([]byte, error) {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}
