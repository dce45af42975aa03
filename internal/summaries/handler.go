package summaries

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/pkg/response"
)

// Lister reads stored summaries.
type Lister interface {
	ListBySession(ctx context.Context, sessionRef string) ([]models.SpeechSummary, error)
}

// Handler handles GET /sessions/:session_id/summaries.
type Handler struct {
	repo Lister
}

// NewHandler creates a summaries handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List returns the stored speech summaries for a session.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		response.Internal(c, "failed to list summaries")
		return
	}
	response.OK(c, gin.H{"summaries": list})
}
