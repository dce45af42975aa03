package feedback

import (
	"time"

	"github.com/interview-coach/realtime/internal/speech"
)

// Type is the outbound feedback_type.
type Type string

const (
	TypeSpeechAnalysis   Type = "speech_analysis"
	TypeError            Type = "error"
	TypeConnectionStatus Type = "connection_status"
	TypePong             Type = "pong"
)

// Kind is the inbound message type.
type Kind string

const (
	KindAudioChunk     Kind = "audio_chunk"
	KindTranscript     Kind = "transcript"
	KindMetadataUpdate Kind = "metadata_update"
	KindPing           Kind = "ping"
	KindNewQuestion    Kind = "new_question"

	// kindMetadata is the older name clients still send for metadata_update.
	kindMetadata Kind = "metadata"
)

// Session metadata keys read by the feedback path.
const (
	MetaQuestionID     = "question_id"
	MetaQuestionText   = "question_text"
	MetaJobDescription = "job_description"
)

// Feedback is one outbound message.
type Feedback struct {
	SessionReference string           `json:"session_reference"`
	Type             Type             `json:"feedback_type"`
	Message          string           `json:"message"`
	Confidence       float64          `json:"confidence"`
	Suggestions      []string         `json:"suggestions"`
	Metrics          *speech.Snapshot `json:"metrics,omitempty"`
	Data             map[string]any   `json:"data,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`

	// Augmented is true when the external analysis contributed to this message.
	Augmented bool `json:"-"`
}

// Inbound is a decoded, validated client message. Exactly one payload field is set for kinds
// that carry one.
type Inbound struct {
	Kind       Kind
	Audio      *AudioChunk
	Transcript *Transcript
	Metadata   map[string]any
	Question   *NewQuestion
}

// AudioChunk is an audio_chunk payload.
type AudioChunk struct {
	Data       []byte
	ChunkIndex int
	IsFinal    bool
	// Transcript is optional text the decoder already produced for this chunk.
	Transcript string
	// Volume is an optional pre-extracted loudness feature (0-1).
	Volume *float64
}

// Transcript is a transcript payload.
type Transcript struct {
	Text       string
	Confidence *float64
}

// NewQuestion resets per-question state.
type NewQuestion struct {
	QuestionID   any
	QuestionText string
}

// ErrorFeedback builds an error-kind message.
func ErrorFeedback(ref, message string, now time.Time) Feedback {
	return Feedback{
		SessionReference: ref,
		Type:             TypeError,
		Message:          message,
		Suggestions:      []string{},
		Timestamp:        now,
	}
}

// StatusFeedback builds a connection_status message.
func StatusFeedback(ref, status, message string, now time.Time) Feedback {
	return Feedback{
		SessionReference: ref,
		Type:             TypeConnectionStatus,
		Message:          message,
		Confidence:       1,
		Suggestions:      []string{},
		Data:             map[string]any{"status": status},
		Timestamp:        now,
	}
}

// PongFeedback answers a ping.
func PongFeedback(ref string, now time.Time) Feedback {
	return Feedback{
		SessionReference: ref,
		Type:             TypePong,
		Message:          "pong",
		Confidence:       1,
		Suggestions:      []string{},
		Timestamp:        now,
	}
}
