package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"poll-service/internal/models"
	"poll-service/internal/poll"

	"github.com/gin-gonic/gin"
)

type PollHandler struct {
	polls PollService
}

func NewPollHandler(polls PollService) *PollHandler {
	return &PollHandler{polls: polls}
}

// ListPolls godoc
// @Summary List polls
// @Description All stored polls, oldest first
// @Tags polls
// @Produce json
// @Success 200 {object} models.APIResponse "Polls"
// @Failure 500 {object} models.APIResponse "Internal server error"
// @Router /polls [get]
func (h *PollHandler) ListPolls(c *gin.Context) {
	polls, err := h.polls.Polls(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list polls", "error", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{Error: "failed to load polls"})
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: polls})
}

// ListPollsByOwner godoc
// @Summary List a presenter's polls
// @Tags polls
// @Produce json
// @Param username path string true "Presenter username"
// @Success 200 {object} models.APIResponse "Polls"
// @Failure 500 {object} models.APIResponse "Internal server error"
// @Router /polls/{username} [get]
func (h *PollHandler) ListPollsByOwner(c *gin.Context) {
	owner := c.Param("username")
	polls, err := h.polls.PollsByOwner(c.Request.Context(), owner)
	if err != nil {
		slog.Error("Failed to list polls", "owner", owner, "error", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{Error: "failed to load polls"})
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: polls})
}

// ClosePoll godoc
// @Summary Close a poll
// @Description Finalize an open poll and broadcast its final results
// @Tags polls
// @Produce json
// @Security BearerAuth
// @Param id path string true "Poll ID"
// @Success 200 {object} models.APIResponse "Poll closed"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 403 {object} models.APIResponse "Not a teacher token"
// @Failure 404 {object} models.APIResponse "Poll not found"
// @Failure 409 {object} models.APIResponse "Poll already closed"
// @Router /polls/{id}/close [post]
func (h *PollHandler) ClosePoll(c *gin.Context) {
	id := c.Param("id")
	err := h.polls.Close(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.APIResponse{Success: true})
	case errors.Is(err, poll.ErrPollNotFound):
		c.JSON(http.StatusNotFound, models.APIResponse{Error: err.Error()})
	case errors.Is(err, poll.ErrAlreadyFinalized):
		c.JSON(http.StatusConflict, models.APIResponse{Error: err.Error()})
	default:
		slog.Error("Failed to close poll", "pollID", id, "error", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{Error: "failed to close poll"})
	}
}
