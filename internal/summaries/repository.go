// Package summaries persists the end-of-connection speech readouts produced by the worker.
package summaries

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/models"
)

// Repository handles speech_session_summaries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a summaries repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FromSession converts a session summary into its row form.
func FromSession(s feedback.Summary) (models.SpeechSummary, error) {
	id, err := uuid.Parse(s.ConnectionID)
	if err != nil {
		return models.SpeechSummary{}, fmt.Errorf("connection id %q: %w", s.ConnectionID, err)
	}
	row := models.SpeechSummary{
		ConnectionID:     id,
		SessionReference: s.SessionReference,
		UserID:           s.UserID,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		Messages:         s.Messages,
		AudioChunks:      s.AudioChunks,
		Questions:        s.Questions,
		WordCount:        s.Final.WordCount,
		FillerWordCount:  s.Final.FillerWordCount,
		PauseCount:       s.Final.PauseCount,
		PaceWPM:          s.Final.PaceWPM,
		Clarity:          s.Final.Clarity,
		Confidence:       s.Final.Confidence,
	}
	if s.QuestionID != nil {
		q := fmt.Sprint(s.QuestionID)
		row.QuestionID = &q
	}
	return row, nil
}

// Upsert stores a summary. Re-processing the same connection overwrites the previous row.
func (r *Repository) Upsert(ctx context.Context, s models.SpeechSummary) (int64, error) {
	const q = `INSERT INTO speech_session_summaries
		(connection_id, session_reference, user_id, question_id, started_at, ended_at, messages, audio_chunks,
		 questions, word_count, filler_word_count, pause_count, pace_wpm, clarity, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (connection_id) DO UPDATE SET
		 ended_at = EXCLUDED.ended_at, messages = EXCLUDED.messages, audio_chunks = EXCLUDED.audio_chunks,
		 questions = EXCLUDED.questions, word_count = EXCLUDED.word_count,
		 filler_word_count = EXCLUDED.filler_word_count, pause_count = EXCLUDED.pause_count,
		 pace_wpm = EXCLUDED.pace_wpm, clarity = EXCLUDED.clarity, confidence = EXCLUDED.confidence
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q, s.ConnectionID, s.SessionReference, s.UserID, s.QuestionID, s.StartedAt, s.EndedAt,
		s.Messages, s.AudioChunks, s.Questions, s.WordCount, s.FillerWordCount, s.PauseCount, s.PaceWPM,
		s.Clarity, s.Confidence).Scan(&id)
	return id, err
}

// SetArchiveKey records where the summary document was archived.
func (r *Repository) SetArchiveKey(ctx context.Context, connectionID uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE speech_session_summaries SET archive_key = $2 WHERE connection_id = $1`, connectionID, key)
	return err
}

// ListBySession returns the summaries for a session reference, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionRef string) ([]models.SpeechSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, connection_id, session_reference, user_id, question_id, started_at, ended_at, messages,
		 audio_chunks, questions, word_count, filler_word_count, pause_count, pace_wpm, clarity, confidence,
		 archive_key, created_at
		 FROM speech_session_summaries WHERE session_reference = $1 ORDER BY ended_at DESC`, sessionRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.SpeechSummary{}
	for rows.Next() {
		var s models.SpeechSummary
		if err := rows.Scan(&s.ID, &s.ConnectionID, &s.SessionReference, &s.UserID, &s.QuestionID,
			&s.StartedAt, &s.EndedAt, &s.Messages, &s.AudioChunks, &s.Questions, &s.WordCount,
			&s.FillerWordCount, &s.PauseCount, &s.PaceWPM, &s.Clarity, &s.Confidence,
			&s.ArchiveKey, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
