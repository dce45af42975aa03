package sessionlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interview-coach/realtime/internal/models"
)

// Repository handles feedback_connection_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a connection log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogOpen inserts a row when a feedback connection becomes active.
func (r *Repository) LogOpen(ctx context.Context, row models.ConnectionLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedback_connection_logs (connection_id, session_reference, user_id, opened_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (connection_id) DO NOTHING`,
		row.ConnectionID, row.SessionReference, row.UserID, row.OpenedAt)
	return err
}

// LogClose completes the row for a closed connection.
func (r *Repository) LogClose(ctx context.Context, connectionID uuid.UUID, closedAt time.Time, messages int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE feedback_connection_logs
		 SET closed_at = $2, messages = $3,
		     duration_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2 - opened_at)))
		 WHERE connection_id = $1 AND closed_at IS NULL`,
		connectionID, closedAt, messages)
	return err
}

// ListBySession returns the connections made for a session reference, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionRef string) ([]models.ConnectionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, connection_id, session_reference, user_id, opened_at, closed_at, messages, duration_seconds
		 FROM feedback_connection_logs WHERE session_reference = $1 ORDER BY opened_at DESC`,
		sessionRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ConnectionLog{}
	for rows.Next() {
		var row models.ConnectionLog
		if err := rows.Scan(&row.ID, &row.ConnectionID, &row.SessionReference, &row.UserID,
			&row.OpenedAt, &row.ClosedAt, &row.Messages, &row.DurationSeconds); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
