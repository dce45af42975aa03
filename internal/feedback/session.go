package feedback

import (
	"errors"
	"fmt"
	"time"

	"github.com/interview-coach/realtime/internal/speech"
)

// ErrChunkOutOfOrder is returned when an audio chunk index is not the expected next value.
var ErrChunkOutOfOrder = errors.New("audio chunk out of order")

// Session is the per-connection speech state. It is owned by the connection goroutine and is
// never shared; the registry only keeps a lightweight handle.
type Session struct {
	ConnectionID string
	UserID       string
	Reference    string
	CreatedAt    time.Time

	lastActivityAt time.Time
	acc            *speech.Accumulator
	nextChunk      int
	metadata       map[string]any
	messages       int
	analyzed       int
	questions      int
}

// NewSession creates session state for an accepted connection.
func NewSession(connectionID, userID, reference string, cfg speech.Config, now time.Time) *Session {
	return &Session{
		ConnectionID:   connectionID,
		UserID:         userID,
		Reference:      reference,
		CreatedAt:      now,
		lastActivityAt: now,
		acc:            speech.NewAccumulator(cfg),
		metadata:       make(map[string]any),
		questions:      1,
	}
}

// Accumulator returns the metrics accumulator for the current question.
func (s *Session) Accumulator() *speech.Accumulator { return s.acc }

// LastActivityAt returns the time of the last handled message.
func (s *Session) LastActivityAt() time.Time { return s.lastActivityAt }

// ExpectedChunk is the chunk_index the next audio chunk must carry.
func (s *Session) ExpectedChunk() int { return s.nextChunk }

// Touch records activity for one inbound message.
func (s *Session) Touch(now time.Time) {
	s.lastActivityAt = now
	s.messages++
}

// markAnalyzed counts a message that reached the analysis pipeline.
func (s *Session) markAnalyzed() { s.analyzed++ }

// AcceptChunk advances the chunk sequence if index is the expected next value.
func (s *Session) AcceptChunk(index int) error {
	if index != s.nextChunk {
		return fmt.Errorf("%w: expected chunk_index %d, got %d", ErrChunkOutOfOrder, s.nextChunk, index)
	}
	s.nextChunk++
	return nil
}

// MergeMetadata overlays m onto the session metadata.
func (s *Session) MergeMetadata(m map[string]any) {
	for k, v := range m {
		s.metadata[k] = v
	}
}

// Metadata returns a copy of the session metadata.
func (s *Session) Metadata() map[string]any {
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *Session) dropMetadata(keys ...string) {
	for _, k := range keys {
		delete(s.metadata, k)
	}
}

// MetaString returns a string metadata value, or "" when absent.
func (s *Session) MetaString(key string) string {
	v, _ := s.metadata[key].(string)
	return v
}

// Reset starts a new question: metrics and transcript are cleared, the chunk sequence is kept.
func (s *Session) Reset() {
	s.acc.Reset()
	s.questions++
}

// Summary is the final readout of a session, handed to persistence when the connection closes.
type Summary struct {
	ConnectionID     string          `json:"connection_id"`
	UserID           string          `json:"user_id"`
	SessionReference string          `json:"session_reference"`
	QuestionID       any             `json:"question_id,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	Messages         int             `json:"messages"`
	Analyzed         int             `json:"analyzed_messages"`
	AudioChunks      int             `json:"audio_chunks"`
	Questions        int             `json:"questions"`
	Final            speech.Snapshot `json:"final"`
}

// Summary snapshots the session as of now.
func (s *Session) Summary(now time.Time) Summary {
	return Summary{
		ConnectionID:     s.ConnectionID,
		UserID:           s.UserID,
		SessionReference: s.Reference,
		QuestionID:       s.metadata[MetaQuestionID],
		StartedAt:        s.CreatedAt,
		EndedAt:          now,
		Messages:         s.messages,
		Analyzed:         s.analyzed,
		AudioChunks:      s.nextChunk,
		Questions:        s.questions,
		Final:            s.acc.Snapshot(now),
	}
}
