package feedback

import (
	"context"

	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/metrics"
)

// Dispatcher decodes inbound frames and routes them by kind. It holds no per-session state.
type Dispatcher struct {
	service *Service
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher backed by service.
func NewDispatcher(service *Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{service: service, logger: logger}
}

// Service returns the feedback service used for analysis kinds.
func (d *Dispatcher) Service() *Service { return d.service }

// Dispatch handles one raw inbound frame and returns the outbound messages for it, in order.
// metadata_update returns none.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, raw []byte) []Feedback {
	now := d.service.Now()
	sess.Touch(now)

	in, err := Decode(raw)
	if err != nil {
		metrics.ProtocolErrors.Inc()
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		d.logger.Debug("rejected inbound message", zap.String("connection_id", sess.ConnectionID), zap.Error(err))
		return []Feedback{ErrorFeedback(sess.Reference, err.Error(), now)}
	}
	metrics.MessagesTotal.WithLabelValues(string(in.Kind)).Inc()

	switch in.Kind {
	case KindPing:
		return []Feedback{PongFeedback(sess.Reference, now)}
	case KindMetadataUpdate:
		sess.MergeMetadata(in.Metadata)
		return nil
	case KindNewQuestion:
		sess.Reset()
		sess.dropMetadata(MetaQuestionID, MetaQuestionText)
		meta := map[string]any{}
		if in.Question.QuestionID != nil {
			meta[MetaQuestionID] = in.Question.QuestionID
		}
		if in.Question.QuestionText != "" {
			meta[MetaQuestionText] = in.Question.QuestionText
		}
		sess.MergeMetadata(meta)
		return []Feedback{StatusFeedback(sess.Reference, "ready", "ready for next question", now)}
	default:
		return []Feedback{d.service.Handle(ctx, sess, in)}
	}
}
