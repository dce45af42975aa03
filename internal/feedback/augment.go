package feedback

import (
	"context"
	"fmt"

	"github.com/interview-coach/realtime/internal/speech"
)

// AugmentRequest is the context handed to the external analysis collaborator.
type AugmentRequest struct {
	SessionReference string
	QuestionText     string
	JobDescription   string
	Transcript       string
	Snapshot         speech.Snapshot
}

// Augmentation is the enrichment returned by the collaborator.
type Augmentation struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Augmenter enriches heuristic feedback. Implementations should honor ctx, but the service does
// not rely on it: the wait is bounded regardless.
type Augmenter interface {
	Augment(ctx context.Context, req AugmentRequest) (*Augmentation, error)
}

type augmentResult struct {
	aug *Augmentation
	err error
}

// callAugmenter runs the collaborator under the service timeout. It returns when the
// collaborator answers, the timeout fires, or ctx is cancelled, whichever comes first.
func (s *Service) callAugmenter(ctx context.Context, req AugmentRequest) (*Augmentation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.augmentTimeout)
	defer cancel()

	done := make(chan augmentResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- augmentResult{err: fmt.Errorf("augmenter panic: %v", r)}
			}
		}()
		aug, err := s.augmenter.Augment(ctx, req)
		done <- augmentResult{aug: aug, err: err}
	}()

	select {
	case res := <-done:
		return res.aug, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
