package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/core"
)

// UserHandlers exposes the directory listing and presence snapshot.
type UserHandlers struct {
	authService *auth.Service
	registry    *core.Registry
	log         *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(authService *auth.Service, registry *core.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		authService: authService,
		registry:    registry,
		log:         logger,
	}
}

// UsersResponse lists usernames.
type UsersResponse struct {
	Users []string `json:"users"`
}

// OnlineResponse is the presence snapshot.
type OnlineResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// MeResponse describes the caller.
type MeResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// ListUsers returns every registered username.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.authService.ListUsernames(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: core.ErrCodeStorageUnavailable})
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, UsersResponse{Users: users})
}

// Online returns the usernames with at least one live session.
// GET /api/online
func (h *UserHandlers) Online(c *gin.Context) {
	users := h.registry.OnlineUsernames()
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, OnlineResponse{Users: users, Count: len(users)})
}

// Me returns the authenticated caller.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	claims := claimsFrom(c)
	c.JSON(http.StatusOK, MeResponse{
		ID:       claims.UserID,
		Username: claims.Username,
		Online:   h.registry.IsOnline(claims.Username),
	})
}
