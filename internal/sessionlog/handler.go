package sessionlog

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/pkg/response"
)

// Lister reads connection logs.
type Lister interface {
	ListBySession(ctx context.Context, sessionRef string) ([]models.ConnectionLog, error)
}

// Handler handles GET /sessions/:session_id/connections.
type Handler struct {
	repo Lister
}

// NewHandler creates a connection log handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// GetConnections lists the feedback connections opened for a session (admin).
func (h *Handler) GetConnections(c *gin.Context) {
	ref := c.Param("session_id")
	if ref == "" {
		response.BadRequest(c, "session_id required")
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), ref)
	if err != nil {
		response.Internal(c, "failed to list connections")
		return
	}
	response.OK(c, gin.H{"connections": list})
}
