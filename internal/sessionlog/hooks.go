package sessionlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/internal/realtime"
)

const hookTimeout = 3 * time.Second

// Recorder persists connection open/close rows.
type Recorder interface {
	LogOpen(ctx context.Context, row models.ConnectionLog) error
	LogClose(ctx context.Context, connectionID uuid.UUID, closedAt time.Time, messages int) error
}

// SummaryEnqueuer hands a closed session's summary to the background worker.
type SummaryEnqueuer interface {
	EnqueueSessionSummary(ctx context.Context, payload any) error
}

// Hooks adapts the registry lifecycle callbacks to the audit log and the summary queue.
// Failures are logged and never reach the connection.
type Hooks struct {
	logs   Recorder
	jobs   SummaryEnqueuer
	logger *zap.Logger
}

// NewHooks creates lifecycle hooks. Either collaborator may be nil.
func NewHooks(logs Recorder, jobs SummaryEnqueuer, logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{logs: logs, jobs: jobs, logger: logger}
}

// Attach installs the hooks on r.
func (h *Hooks) Attach(r *realtime.Registry) {
	r.SetLifecycleHandlers(h.OnOpen, h.OnClose)
}

// OnOpen records the connection.
func (h *Hooks) OnOpen(info realtime.ConnectionInfo) {
	if h.logs == nil {
		return
	}
	id, err := uuid.Parse(info.ID)
	if err != nil {
		h.logger.Warn("connection id is not a uuid", zap.String("connection_id", info.ID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	err = h.logs.LogOpen(ctx, models.ConnectionLog{
		ConnectionID:     id,
		SessionReference: info.SessionReference,
		UserID:           info.UserID,
		OpenedAt:         info.ConnectedAt,
	})
	if err != nil {
		h.logger.Warn("log connection open", zap.String("connection_id", info.ID), zap.Error(err))
	}
}

// OnClose completes the audit row and, when any speech was analyzed, enqueues the session summary.
func (h *Hooks) OnClose(info realtime.ConnectionInfo, summary feedback.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	if h.logs != nil {
		if id, err := uuid.Parse(info.ID); err == nil {
			if err := h.logs.LogClose(ctx, id, summary.EndedAt, summary.Messages); err != nil {
				h.logger.Warn("log connection close", zap.String("connection_id", info.ID), zap.Error(err))
			}
		}
	}
	if h.jobs != nil && summary.Analyzed > 0 {
		if err := h.jobs.EnqueueSessionSummary(ctx, summary); err != nil {
			h.logger.Warn("enqueue session summary", zap.String("connection_id", info.ID), zap.Error(err))
		}
	}
}
