package handlers

import (
	"log/slog"
	"net/http"

	"poll-service/internal/auth"
	"poll-service/internal/models"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	tokens *auth.TokenService
}

func NewAuthHandler(tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// TeacherLogin godoc
// @Summary Presenter login
// @Description Issue a fresh presenter identity and a teacher token. No credentials are checked.
// @Tags auth
// @Produce json
// @Success 200 {object} models.LoginResponse "Presenter identity and token"
// @Failure 500 {object} models.APIResponse "Internal server error"
// @Router /teacher-login [post]
func (h *AuthHandler) TeacherLogin(c *gin.Context) {
	username, token, err := h.tokens.TeacherLogin()
	if err != nil {
		slog.Error("Failed to issue teacher token", "error", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Success:  true,
		Username: username,
		Token:    token,
	})
}
