package queue

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	SessionReference string `json:"session_reference"`
	Messages         int    `json:"messages"`
}

func TestJobEnvelope(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	job, err := NewJob(JobTypeSessionSummary, samplePayload{SessionReference: "s1", Messages: 12}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Zero(t, job.Attempt)

	raw, err := sonic.MarshalString(job)
	require.NoError(t, err)
	back, err := decodeJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.ID, back.ID)
	assert.Equal(t, JobTypeSessionSummary, back.Type)
	assert.True(t, now.Equal(back.CreatedAt))

	var p samplePayload
	require.NoError(t, back.DecodePayload(&p))
	assert.Equal(t, samplePayload{SessionReference: "s1", Messages: 12}, p)
}

func TestDecodeJob_Malformed(t *testing.T) {
	for _, raw := range []string{"", "[]", `{"type":"session_summary"}`, `{"id":"x"}`, "{"} {
		_, err := decodeJob(raw)
		assert.ErrorIs(t, err, ErrMalformedJob, raw)
	}

	job := &Job{ID: "x", Type: JobTypeSessionSummary, Payload: []byte(`"not an object"`)}
	var p samplePayload
	assert.ErrorIs(t, job.DecodePayload(&p), ErrMalformedJob)
}
