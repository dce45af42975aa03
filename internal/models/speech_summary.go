package models

import (
	"time"

	"github.com/google/uuid"
)

// SpeechSummary is the persisted end-of-connection speech readout.
type SpeechSummary struct {
	ID               int64     `json:"id"`
	ConnectionID     uuid.UUID `json:"connection_id"`
	SessionReference string    `json:"session_reference"`
	UserID           string    `json:"user_id"`
	QuestionID       *string   `json:"question_id,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	Messages         int       `json:"messages"`
	AudioChunks      int       `json:"audio_chunks"`
	Questions        int       `json:"questions"`
	WordCount        int       `json:"word_count"`
	FillerWordCount  int       `json:"filler_word_count"`
	PauseCount       int       `json:"pause_count"`
	PaceWPM          *float64  `json:"pace_wpm,omitempty"`
	Clarity          float64   `json:"clarity"`
	Confidence       float64   `json:"confidence"`
	ArchiveKey       *string   `json:"archive_key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
