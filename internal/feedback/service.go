package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/metrics"
	"github.com/interview-coach/realtime/internal/speech"
)

// DefaultAugmentTimeout bounds the wait on the augmentation collaborator.
const DefaultAugmentTimeout = 1500 * time.Millisecond

const optimalMessage = "Keep going! Your speech is clear and well-paced."

// Service assembles speech_analysis feedback from session state, the rules engine and the
// optional augmentation collaborator.
type Service struct {
	cfg            speech.Config
	rules          speech.Rules
	augmenter      Augmenter
	augmentTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAugmenter enables augmentation with the given timeout (DefaultAugmentTimeout when <= 0).
func WithAugmenter(a Augmenter, timeout time.Duration) Option {
	return func(s *Service) {
		s.augmenter = a
		if timeout > 0 {
			s.augmentTimeout = timeout
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a feedback service.
func NewService(cfg speech.Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Merge()
	s := &Service{
		cfg:            cfg,
		rules:          speech.NewRules(cfg),
		augmentTimeout: DefaultAugmentTimeout,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the speech thresholds sessions should be created with.
func (s *Service) Config() speech.Config { return s.cfg }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// NewSession creates session state using the service configuration and clock.
func (s *Service) NewSession(connectionID, userID, reference string) *Session {
	return NewSession(connectionID, userID, reference, s.cfg, s.now())
}

// Handle applies an audio_chunk or transcript message to sess and returns the feedback for it.
// It never returns an error: protocol and processing failures become error feedback.
func (s *Service) Handle(ctx context.Context, sess *Session, in Inbound) (fb Feedback) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.ProcessingErrors.Inc()
			s.logger.Error("feedback processing panic",
				zap.String("connection_id", sess.ConnectionID),
				zap.String("kind", string(in.Kind)),
				zap.Any("panic", r))
			fb = ErrorFeedback(sess.Reference, fmt.Sprintf("error processing %s: %v", in.Kind, r), time.Now())
		}
	}()

	now := s.now()
	data := map[string]any{}
	if qid, ok := sess.metadata[MetaQuestionID]; ok {
		data[MetaQuestionID] = qid
	}

	var text string
	switch in.Kind {
	case KindAudioChunk:
		if in.Audio == nil {
			return ErrorFeedback(sess.Reference, "audio_chunk payload missing", now)
		}
		if err := sess.AcceptChunk(in.Audio.ChunkIndex); err != nil {
			metrics.ProtocolErrors.Inc()
			return ErrorFeedback(sess.Reference, err.Error(), now)
		}
		sess.acc.IngestAudio(speech.AudioSignal{Volume: in.Audio.Volume, At: now})
		text = in.Audio.Transcript
		if text != "" {
			sess.acc.IngestText(speech.TextFragment{Text: text, At: now})
		}
		data["chunk_index"] = in.Audio.ChunkIndex
		data["is_final"] = in.Audio.IsFinal
	case KindTranscript:
		if in.Transcript == nil {
			return ErrorFeedback(sess.Reference, "transcript payload missing", now)
		}
		text = in.Transcript.Text
		sess.acc.IngestText(speech.TextFragment{Text: text, Confidence: in.Transcript.Confidence, At: now})
	default:
		return ErrorFeedback(sess.Reference, fmt.Sprintf("%s does not produce speech feedback", in.Kind), now)
	}

	sess.markAnalyzed()

	snap := sess.acc.Snapshot(now)
	suggestions := s.rules.Evaluate(snap)

	fb = Feedback{
		SessionReference: sess.Reference,
		Type:             TypeSpeechAnalysis,
		Confidence:       snap.Confidence,
		Suggestions:      suggestions,
		Metrics:          &snap,
		Data:             data,
		Timestamp:        now,
	}

	if aug := s.maybeAugment(ctx, sess, text, snap); aug != nil {
		fb.Suggestions = mergeSuggestions(fb.Suggestions, aug.Suggestions)
		if aug.Message != "" {
			data["ai_feedback"] = aug.Message
		}
		fb.Augmented = true
	}
	fb.Message = s.composeMessage(snap, fb.Suggestions)

	metrics.FeedbackDuration.Observe(time.Since(start).Seconds())
	return fb
}

// maybeAugment returns nil whenever the heuristic result should be used unmodified.
func (s *Service) maybeAugment(ctx context.Context, sess *Session, text string, snap speech.Snapshot) *Augmentation {
	if s.augmenter == nil || strings.TrimSpace(text) == "" || sess.MetaString(MetaQuestionText) == "" {
		metrics.Augmentations.WithLabelValues("skipped").Inc()
		return nil
	}
	req := AugmentRequest{
		SessionReference: sess.Reference,
		QuestionText:     sess.MetaString(MetaQuestionText),
		JobDescription:   sess.MetaString(MetaJobDescription),
		Transcript:       sess.acc.Transcript(),
		Snapshot:         snap,
	}
	aug, err := s.callAugmenter(ctx, req)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		metrics.Augmentations.WithLabelValues("timeout").Inc()
		s.logger.Debug("augmentation timed out", zap.String("connection_id", sess.ConnectionID))
		return nil
	case err != nil:
		metrics.Augmentations.WithLabelValues("error").Inc()
		s.logger.Warn("augmentation failed", zap.String("connection_id", sess.ConnectionID), zap.Error(err))
		return nil
	case aug == nil || (aug.Message == "" && len(aug.Suggestions) == 0):
		metrics.Augmentations.WithLabelValues("empty").Inc()
		return nil
	}
	metrics.Augmentations.WithLabelValues("augmented").Inc()
	return aug
}

func mergeSuggestions(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if s == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (s *Service) composeMessage(snap speech.Snapshot, suggestions []string) string {
	if len(suggestions) == 0 {
		return optimalMessage
	}
	var notes []string
	if snap.WordCount > 0 && snap.Clarity < s.cfg.ClarityMin {
		notes = append(notes, "clarity could be improved")
	}
	if snap.FillerWordCount > 5 {
		notes = append(notes, fmt.Sprintf("%d filler words detected", snap.FillerWordCount))
	}
	if len(notes) == 0 {
		return suggestions[0]
	}
	return fmt.Sprintf("%s (%s)", suggestions[0], strings.Join(notes, ", "))
}
