package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosedConnection is returned when attempting to use a closed connection
var ErrClosedConnection = errors.New("connection closed")

type frame struct {
	messageType int
	data        []byte
}

// mockConn implements Conn for testing. Inbound frames are fed through in.
type mockConn struct {
	mu       sync.Mutex
	messages []frame
	closed   bool

	in   chan []byte
	done chan struct{}
	once sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosedConnection
	}
	m.messages = append(m.messages, frame{messageType, data})
	return nil
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.in:
		return websocket.TextMessage, data, nil
	case <-m.done:
		return 0, nil, ErrClosedConnection
	}
}

func (m *mockConn) SetReadLimit(int64)                       {}
func (m *mockConn) SetReadDeadline(time.Time) error          { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error         { return nil }
func (m *mockConn) SetPongHandler(func(appData string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// textMessages decodes the text frames written so far.
func (m *mockConn) textMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, f := range m.messages {
		if f.messageType != websocket.TextMessage {
			continue
		}
		var msg Message
		if json.Unmarshal(f.data, &msg) == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockConn) wroteClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.messages {
		if f.messageType == websocket.CloseMessage {
			return true
		}
	}
	return false
}

// recordingHandler remembers what the hub delivered.
type recordingHandler struct {
	mu           sync.Mutex
	messages     []*Message
	disconnected []string
}

func (h *recordingHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleDisconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, connID)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages), len(h.disconnected)
}

// connectTestClient registers a client on a mock connection and starts its pumps.
func connectTestClient(hub *Hub) (*Client, *mockConn) {
	conn := newMockConn()
	client := NewClient(hub, conn)
	hub.registerClient(client)
	client.start()
	return client, conn
}
