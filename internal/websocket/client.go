package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var ErrClientDisconnected = errors.New("client disconnected")

// Conn is the part of *websocket.Conn a Client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one connected browser tab.
type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu         sync.Mutex // guards send against close
	sendClosed bool

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

// close marks the client as closed and cancels its context.
func (c *Client) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
		slog.Debug("Client marked as closed", "clientID", c.id)
	}
}

// closeSend closes the send channel once. writePump flushes what is queued, then sends
// a close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *Client) closeSendLocked() {
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
		slog.Debug("Send channel closed", "clientID", c.id)
	}
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendClosed || c.isClosed() {
		return ErrClientDisconnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id)
		c.closeSendLocked()
		return ErrClientDisconnected
	}
}

// SendMessage queues msg for this client only.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) SendError(code, message string) {
	if err := c.SendMessage(NewErrorMessage(code, message)); err != nil {
		slog.Debug("Failed to send error message", "clientID", c.id, "error", err)
	}
}

func (c *Client) readPump() {
	defer c.wg.Done()
	defer func() {
		c.close()
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Debug("Failed to unmarshal message", "clientID", c.id, "error", err)
			c.SendError(CodeInvalidMessage, "Invalid message format")
			continue
		}
		if err := msg.Validate(); err != nil {
			c.SendError(CodeInvalidMessage, err.Error())
			continue
		}

		if h := c.hub.messageHandler(); h != nil {
			h.HandleMessage(c.ctx, c, &msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
		c.wg.Done()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// start launches the pumps.
func (c *Client) start() {
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// wait blocks until both pumps have returned or the timeout passes.
func (c *Client) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for client goroutines", "clientID", c.id, "timeout", timeout)
		return false
	}
}
