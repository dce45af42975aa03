package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/internal/summaries"
	"github.com/interview-coach/realtime/pkg/queue"
	"github.com/interview-coach/realtime/pkg/storage"
)

// SummaryStore persists summary rows.
type SummaryStore interface {
	Upsert(ctx context.Context, s models.SpeechSummary) (int64, error)
	SetArchiveKey(ctx context.Context, connectionID uuid.UUID, key string) error
}

// Archiver uploads documents to object storage.
type Archiver interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// SummaryProcessor processes session summary jobs: store the row, archive the JSON document.
type SummaryProcessor struct {
	store   SummaryStore
	archive Archiver
	jobs    JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewSummaryProcessor creates a summary processor. archive may be nil when no bucket is configured.
func NewSummaryProcessor(store SummaryStore, archive Archiver, jobs JobSource, logger *zap.Logger) *SummaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryProcessor{store: store, archive: archive, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one session summary job.
func (p *SummaryProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionSummary {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var summary feedback.Summary
	if err := job.DecodePayload(&summary); err != nil {
		return err
	}
	row, err := summaries.FromSession(summary)
	if err != nil {
		return fmt.Errorf("convert summary: %w", err)
	}
	if _, err := p.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	if p.archive != nil {
		doc, err := sonic.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		key := storage.SummaryKey(summary.SessionReference, summary.ConnectionID, summary.EndedAt)
		if _, err := p.archive.Upload(ctx, key, "application/json", doc); err != nil {
			return fmt.Errorf("archive summary: %w", err)
		}
		if err := p.store.SetArchiveKey(ctx, row.ConnectionID, key); err != nil {
			return fmt.Errorf("update archive key: %w", err)
		}
	}

	p.logger.Info("session summary stored",
		zap.String("connection_id", summary.ConnectionID),
		zap.String("session_reference", summary.SessionReference),
		zap.Int("word_count", summary.Final.WordCount))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SummaryProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("summary worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *SummaryProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
