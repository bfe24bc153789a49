package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"poll-service/internal/events"

	"github.com/google/uuid"
)

// Message is the envelope every frame carries in both directions.
type Message struct {
	ID        string          `json:"id"`
	Type      events.Name     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Validate checks the inbound envelope.
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: missing data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", m.Type, err)
	}
	return nil
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent in error messages.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeNotFound       = "NOT_FOUND"
	CodeClosed         = "POLL_CLOSED"
	CodeInvalidPoll    = "INVALID_POLL"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
)

// NewMessage builds an outbound envelope around payload.
func NewMessage(event events.Name, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}, nil
}

func NewErrorMessage(code, message string) *Message {
	msg, _ := NewMessage(events.Error, ErrorData{Code: code, Message: message})
	return msg
}
