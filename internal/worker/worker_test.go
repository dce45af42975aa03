package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/pkg/queue"
)

type memStore struct {
	rows     map[uuid.UUID]models.SpeechSummary
	archived map[uuid.UUID]string
	err      error
}

func newMemStore() *memStore {
	return &memStore{rows: map[uuid.UUID]models.SpeechSummary{}, archived: map[uuid.UUID]string{}}
}

func (m *memStore) Upsert(_ context.Context, s models.SpeechSummary) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.rows[s.ConnectionID] = s
	return int64(len(m.rows)), nil
}

func (m *memStore) SetArchiveKey(_ context.Context, id uuid.UUID, key string) error {
	m.archived[id] = key
	return nil
}

type memArchive struct {
	objects map[string][]byte
}

func (a *memArchive) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	a.objects[key] = body
	return "mem://" + key, nil
}

type memQueue struct {
	mu      sync.Mutex
	pending []*queue.Job
	retried []*queue.Job
}

func (q *memQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return job, queue.QueueSummaries, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, "", nil
	}
}

func (q *memQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func summaryJob(t *testing.T, s feedback.Summary) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeSessionSummary, s, time.Now())
	require.NoError(t, err)
	return job
}

func TestProcess_StoresAndArchives(t *testing.T) {
	store := newMemStore()
	archive := &memArchive{objects: map[string][]byte{}}
	p := NewSummaryProcessor(store, archive, &memQueue{}, nil)

	id := uuid.New()
	ended := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)
	job := summaryJob(t, feedback.Summary{
		ConnectionID: id.String(), SessionReference: "s1", QuestionID: "q3",
		StartedAt: ended.Add(-5 * time.Minute), EndedAt: ended, Messages: 9,
	})

	require.NoError(t, p.Process(context.Background(), job))
	require.Contains(t, store.rows, id)
	assert.Equal(t, 9, store.rows[id].Messages)
	assert.Equal(t, "q3", *store.rows[id].QuestionID)

	key := "summaries/s1/2025-03-01/" + id.String() + ".json"
	assert.Equal(t, key, store.archived[id])
	require.Contains(t, archive.objects, key)
	assert.True(t, strings.Contains(string(archive.objects[key]), `"session_reference":"s1"`))
}

func TestProcess_WithoutArchive(t *testing.T) {
	store := newMemStore()
	p := NewSummaryProcessor(store, nil, &memQueue{}, nil)
	id := uuid.New()

	require.NoError(t, p.Process(context.Background(), summaryJob(t, feedback.Summary{ConnectionID: id.String()})))
	assert.Contains(t, store.rows, id)
	assert.Empty(t, store.archived)
}

func TestProcess_Errors(t *testing.T) {
	p := NewSummaryProcessor(newMemStore(), nil, &memQueue{}, nil)

	assert.Error(t, p.Process(context.Background(), &queue.Job{ID: "1", Type: "email"}))
	assert.ErrorIs(t, p.Process(context.Background(), &queue.Job{ID: "2", Type: queue.JobTypeSessionSummary, Payload: []byte(`[]`)}), queue.ErrMalformedJob)
	assert.Error(t, p.Process(context.Background(), summaryJob(t, feedback.Summary{ConnectionID: "nope"})))
}

func TestRun_RetriesFailures(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	q := &memQueue{}
	q.pending = []*queue.Job{summaryJob(t, feedback.Summary{ConnectionID: uuid.NewString()})}
	p := NewSummaryProcessor(store, nil, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.retried) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, q.retried[0].Attempt)
}
