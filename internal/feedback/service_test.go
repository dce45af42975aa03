package feedback

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interview-coach/realtime/internal/speech"
)

func newTestService(clock *fakeClock, opts ...Option) *Service {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(speech.DefaultConfig(), nil, opts...)
}

func transcript(text string) Inbound {
	return Inbound{Kind: KindTranscript, Transcript: &Transcript{Text: text}}
}

func audio(index int) Inbound {
	return Inbound{Kind: KindAudioChunk, Audio: &AudioChunk{ChunkIndex: index}}
}

func withQuestion(sess *Session) *Session {
	sess.MergeMetadata(map[string]any{MetaQuestionText: "Tell me about a project you led"})
	return sess
}

func TestService_FillerScenario(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(clock)
	sess := svc.NewSession("c1", "u1", "s1")

	first := svc.Handle(context.Background(), sess, audio(0))
	require.Equal(t, TypeSpeechAnalysis, first.Type)

	clock.Advance(10 * time.Second)
	fb := svc.Handle(context.Background(), sess, transcript("um so I think, um, I led the project"))

	require.Equal(t, TypeSpeechAnalysis, fb.Type)
	require.NotNil(t, fb.Metrics)
	assert.Equal(t, 2, fb.Metrics.FillerWordCount)
	assert.InDelta(t, 0.222, fb.Metrics.FillerRatio, 0.001)
	assert.Equal(t, "s1", fb.SessionReference)

	var filler bool
	for _, s := range fb.Suggestions {
		filler = filler || strings.Contains(s, "reduce filler words")
	}
	assert.True(t, filler, "suggestions: %v", fb.Suggestions)
	assert.Equal(t, fb.Suggestions[0], fb.Message)
}

func TestService_OptimalMessage(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(clock)
	sess := svc.NewSession("c1", "u1", "s1")

	svc.Handle(context.Background(), sess, audio(0))
	clock.Advance(10 * time.Second)
	fb := svc.Handle(context.Background(), sess, transcript(
		"I led a team of five engineers to rebuild our billing system and we cut invoice errors by half within two quarters while shipping weekly"))

	assert.Empty(t, fb.Suggestions)
	assert.Equal(t, optimalMessage, fb.Message)
}

func TestService_ChunkOrdering(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(clock)
	sess := svc.NewSession("c1", "u1", "s1")

	steps := []struct {
		index int
		ok    bool
	}{
		{0, true}, {1, true}, {2, true}, {1, false}, {4, false}, {3, true}, {4, true},
	}
	for _, st := range steps {
		fb := svc.Handle(context.Background(), sess, audio(st.index))
		if st.ok {
			assert.Equal(t, TypeSpeechAnalysis, fb.Type, "chunk %d", st.index)
			assert.Equal(t, st.index, fb.Data["chunk_index"])
		} else {
			assert.Equal(t, TypeError, fb.Type, "chunk %d", st.index)
			assert.Contains(t, fb.Message, "expected chunk_index")
		}
	}
	assert.Equal(t, 5, sess.ExpectedChunk())
}

func TestService_AugmentationTimeoutFallsBack(t *testing.T) {
	clock := newFakeClock()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	never := augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
		<-block
		return &Augmentation{Suggestions: []string{"late"}}, nil
	})
	svc := newTestService(clock, WithAugmenter(never, 20*time.Millisecond))
	plain := newTestService(clock)

	sess := withQuestion(svc.NewSession("c1", "u1", "s1"))
	ref := withQuestion(plain.NewSession("c2", "u1", "s1"))

	start := time.Now()
	fb := svc.Handle(context.Background(), sess, transcript("um I basically led it"))
	assert.Less(t, time.Since(start), time.Second)

	want := plain.Handle(context.Background(), ref, transcript("um I basically led it"))

	assert.Equal(t, TypeSpeechAnalysis, fb.Type)
	assert.False(t, fb.Augmented)
	require.NotNil(t, fb.Metrics)
	assert.Equal(t, want.Suggestions, fb.Suggestions)
	assert.Equal(t, want.Message, fb.Message)
	assert.Equal(t, *want.Metrics, *fb.Metrics)
}

func TestService_AugmentationFailuresFallBack(t *testing.T) {
	tests := []struct {
		name string
		aug  Augmenter
	}{
		{name: "error", aug: augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
			return nil, errors.New("upstream 502")
		})},
		{name: "panic", aug: augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
			panic("nil map")
		})},
		{name: "empty", aug: augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
			return &Augmentation{}, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeClock(), WithAugmenter(tt.aug, time.Second))
			sess := withQuestion(svc.NewSession("c1", "u1", "s1"))

			fb := svc.Handle(context.Background(), sess, transcript("we shipped it"))
			assert.Equal(t, TypeSpeechAnalysis, fb.Type)
			assert.False(t, fb.Augmented)
			assert.NotNil(t, fb.Metrics)
		})
	}
}

func TestService_AugmentationCancelledWithConnection(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	never := augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
		<-block
		return nil, nil
	})
	svc := newTestService(newFakeClock(), WithAugmenter(never, time.Hour))
	sess := withQuestion(svc.NewSession("c1", "u1", "s1"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	fb := svc.Handle(ctx, sess, transcript("still answering"))
	assert.Equal(t, TypeSpeechAnalysis, fb.Type)
	assert.False(t, fb.Augmented)
}

func TestService_AugmentationMerges(t *testing.T) {
	var got AugmentRequest
	aug := augmenterFunc(func(_ context.Context, req AugmentRequest) (*Augmentation, error) {
		got = req
		return &Augmentation{
			Message:     "Mention the measurable outcome.",
			Suggestions: []string{"Quantify the impact of your project", "  "},
		}, nil
	})
	svc := newTestService(newFakeClock(), WithAugmenter(aug, time.Second))
	sess := withQuestion(svc.NewSession("c1", "u1", "s1"))
	sess.MergeMetadata(map[string]any{MetaJobDescription: "Staff engineer"})

	fb := svc.Handle(context.Background(), sess, transcript("um um um"))

	assert.True(t, fb.Augmented)
	assert.Equal(t, "Tell me about a project you led", got.QuestionText)
	assert.Equal(t, "Staff engineer", got.JobDescription)
	assert.Equal(t, "um um um", got.Transcript)
	assert.Equal(t, "Quantify the impact of your project", fb.Suggestions[len(fb.Suggestions)-1])
	assert.Contains(t, fb.Suggestions[0], "reduce filler words")
	assert.Equal(t, "Mention the measurable outcome.", fb.Data["ai_feedback"])
}

func TestService_AugmentationSkippedWithoutQuestion(t *testing.T) {
	var calls atomic.Int32
	aug := augmenterFunc(func(context.Context, AugmentRequest) (*Augmentation, error) {
		calls.Add(1)
		return &Augmentation{Suggestions: []string{"x"}}, nil
	})
	svc := newTestService(newFakeClock(), WithAugmenter(aug, time.Second))
	sess := svc.NewSession("c1", "u1", "s1")

	svc.Handle(context.Background(), sess, transcript("hello"))
	svc.Handle(context.Background(), withQuestion(sess), audio(0))

	assert.Zero(t, calls.Load())
}

func TestService_ProcessingPanicBecomesErrorFeedback(t *testing.T) {
	svc := NewService(speech.DefaultConfig(), nil, WithClock(func() time.Time { panic("clock unavailable") }))
	sess := NewSession("c1", "u1", "s1", speech.DefaultConfig(), t0)

	fb := svc.Handle(context.Background(), sess, transcript("hello"))

	assert.Equal(t, TypeError, fb.Type)
	assert.Contains(t, fb.Message, "clock unavailable")
	assert.NotNil(t, fb.Suggestions)
}

func TestService_RejectsNonAnalysisKinds(t *testing.T) {
	svc := newTestService(newFakeClock())
	fb := svc.Handle(context.Background(), svc.NewSession("c1", "u1", "s1"), Inbound{Kind: KindPing})
	assert.Equal(t, TypeError, fb.Type)
}
