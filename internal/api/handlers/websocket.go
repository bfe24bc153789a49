package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"poll-service/internal/auth"
	"poll-service/internal/events"
	"poll-service/internal/participant"
	"poll-service/internal/poll"
	"poll-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

// PollService is the poll lifecycle as seen by the transport layer.
type PollService interface {
	Create(ctx context.Context, req poll.CreateRequest) (*poll.Poll, error)
	SubmitVote(ctx context.Context, pollID, optionText, voter string) (poll.Tally, error)
	Close(ctx context.Context, pollID string) error
	Polls(ctx context.Context) ([]poll.Poll, error)
	PollsByOwner(ctx context.Context, owner string) ([]poll.Poll, error)
}

type joinData struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type answerData struct {
	Username string `json:"username"`
	VoterID  string `json:"voterId"`
	Option   string `json:"option"`
	PollID   string `json:"pollId"`
}

type closeData struct {
	PollID string `json:"pollId"`
	Token  string `json:"token"`
}

type chatData struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// WSHandler upgrades /ws requests and dispatches inbound events to the poll engine and
// the participant registry.
type WSHandler struct {
	hub          *websocket.Hub
	polls        PollService
	participants *participant.Registry
	tokens       *auth.TokenService
	logger       *slog.Logger
}

func NewWSHandler(hub *websocket.Hub, polls PollService, participants *participant.Registry, tokens *auth.TokenService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WSHandler{hub: hub, polls: polls, participants: participants, tokens: tokens, logger: logger}
	hub.SetHandler(h)
	return h
}

// RegisterRoutes maps HTTP methods to handler functions
func (h *WSHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a WebSocket connection for polls, votes, participants and chat
// @Tags websocket
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleMessage routes one inbound envelope.
func (h *WSHandler) HandleMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) {
	switch msg.Type {
	case events.Join, events.JoinChat:
		h.handleJoin(client, msg)
	case events.CreatePoll:
		h.handleCreatePoll(ctx, client, msg)
	case events.SubmitAnswer:
		h.handleSubmitAnswer(ctx, client, msg)
	case events.RemoveParticipant, events.KickOut:
		h.handleRemove(client, msg)
	case events.ClosePoll:
		h.handleClosePoll(ctx, client, msg)
	case events.ChatMessage:
		h.handleChat(client, msg)
	default:
		client.SendError(websocket.CodeUnknownType, "unknown message type: "+msg.Type.String())
	}
}

// HandleDisconnect releases the display name bound to the closed connection.
func (h *WSHandler) HandleDisconnect(connID string) {
	h.participants.Leave(connID)
}

func (h *WSHandler) handleJoin(client *websocket.Client, msg *websocket.Message) {
	var data joinData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			// a bare string is accepted as the name
			var name string
			if json.Unmarshal(msg.Data, &name) != nil {
				client.SendError(websocket.CodeInvalidMessage, "invalid join payload")
				return
			}
			data.Username = name
		}
	}
	name := strings.TrimSpace(data.Username)
	if name == "" {
		name = strings.TrimSpace(data.DisplayName)
	}
	h.participants.Join(client.ID(), name)
}

func (h *WSHandler) handleCreatePoll(ctx context.Context, client *websocket.Client, msg *websocket.Message) {
	var req poll.CreateRequest
	if err := msg.Decode(&req); err != nil {
		client.SendError(websocket.CodeInvalidMessage, err.Error())
		return
	}
	if _, err := h.polls.Create(ctx, req); err != nil {
		h.sendPollError(client, err)
	}
}

func (h *WSHandler) handleSubmitAnswer(ctx context.Context, client *websocket.Client, msg *websocket.Message) {
	var data answerData
	if err := msg.Decode(&data); err != nil {
		client.SendError(websocket.CodeInvalidMessage, err.Error())
		return
	}
	voter := data.Username
	if voter == "" {
		voter = data.VoterID
	}
	if voter == "" || data.Option == "" || data.PollID == "" {
		h.logger.Debug("Ignoring incomplete answer", "clientID", client.ID())
		return
	}
	if _, err := h.polls.SubmitVote(ctx, data.PollID, data.Option, voter); err != nil {
		h.sendPollError(client, err)
	}
}

func (h *WSHandler) handleRemove(client *websocket.Client, msg *websocket.Message) {
	var name string
	if err := json.Unmarshal(msg.Data, &name); err != nil {
		var data joinData
		if err := msg.Decode(&data); err != nil {
			client.SendError(websocket.CodeInvalidMessage, err.Error())
			return
		}
		name = data.DisplayName
		if name == "" {
			name = data.Username
		}
	}
	if name == "" {
		return
	}
	h.participants.RemoveByName(name)
}

func (h *WSHandler) handleClosePoll(ctx context.Context, client *websocket.Client, msg *websocket.Message) {
	var data closeData
	if err := msg.Decode(&data); err != nil || data.PollID == "" {
		client.SendError(websocket.CodeInvalidMessage, "pollId is required")
		return
	}
	if !h.authorizeTeacher(client, data.Token) {
		return
	}
	if err := h.polls.Close(ctx, data.PollID); err != nil {
		h.sendPollError(client, err)
	}
}

// authorizeTeacher checks the bearer token carried by privileged events, the same token
// the REST close endpoint requires.
func (h *WSHandler) authorizeTeacher(client *websocket.Client, token string) bool {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" || h.tokens == nil {
		client.SendError(websocket.CodeUnauthorized, "a teacher token is required")
		return false
	}
	claims, err := h.tokens.Parse(token)
	if err != nil {
		client.SendError(websocket.CodeUnauthorized, "invalid token")
		return false
	}
	if claims.Role != auth.RoleTeacher {
		client.SendError(websocket.CodeForbidden, auth.ErrForbidden.Error())
		return false
	}
	return true
}

func (h *WSHandler) handleChat(client *websocket.Client, msg *websocket.Message) {
	var data chatData
	if err := msg.Decode(&data); err != nil {
		client.SendError(websocket.CodeInvalidMessage, err.Error())
		return
	}
	if data.User == "" {
		return
	}
	h.hub.Publish(events.ChatMessage, data)
}

func (h *WSHandler) sendPollError(client *websocket.Client, err error) {
	switch {
	case errors.Is(err, poll.ErrPollNotFound), errors.Is(err, poll.ErrOptionNotFound):
		client.SendError(websocket.CodeNotFound, err.Error())
	case errors.Is(err, poll.ErrPollClosed), errors.Is(err, poll.ErrAlreadyFinalized):
		client.SendError(websocket.CodeClosed, err.Error())
	case errors.Is(err, poll.ErrInvalidPoll):
		client.SendError(websocket.CodeInvalidPoll, err.Error())
	default:
		h.logger.Error("Poll operation failed", "clientID", client.ID(), "error", err)
		client.SendError(websocket.CodeInternal, "internal error")
	}
}
