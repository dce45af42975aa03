package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionLog is one feedback connection's open/close audit row.
type ConnectionLog struct {
	ID               int64      `json:"id"`
	ConnectionID     uuid.UUID  `json:"connection_id"`
	SessionReference string     `json:"session_reference"`
	UserID           string     `json:"user_id"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	Messages         int        `json:"messages"`
	DurationSeconds  *float64   `json:"duration_seconds,omitempty"`
}
