// Package augment adapts an OpenAI-compatible chat completion endpoint into the feedback
// augmentation collaborator.
package augment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/feedback"
)

const maxSuggestions = 3

var ErrEmptyResponse = errors.New("augment: empty model response")

const systemPrompt = `You are an interview coach giving live feedback while a candidate answers.
Reply with a JSON object only: {"message": "<one short sentence>", "suggestions": ["<short actionable tip>", ...]}.
Give at most 3 suggestions about answer content and structure. Do not repeat delivery metrics back.`

// Config selects the model endpoint.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Client calls a chat completion model for content feedback.
type Client struct {
	client    openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// New creates an augmentation client with SDK retries disabled.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	return &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Augment implements feedback.Augmenter.
func (c *Client) Augment(ctx context.Context, req feedback.AugmentRequest) (*feedback.Augmentation, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		Temperature:         openai.Float(0.3),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	aug, err := parseAugmentation(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Debug("unparseable augmentation",
			zap.String("session_reference", req.SessionReference), zap.Error(err))
		return nil, err
	}
	return aug, nil
}

func buildPrompt(req feedback.AugmentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview question: %s\n", req.QuestionText)
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "Role: %s\n", req.JobDescription)
	}
	fmt.Fprintf(&b, "Answer so far: %s\n", req.Transcript)
	s := req.Snapshot
	fmt.Fprintf(&b, "Delivery: %d words, %d filler words, %d long pauses, clarity %.2f", s.WordCount, s.FillerWordCount, s.PauseCount, s.Clarity)
	if s.PaceWPM != nil {
		fmt.Fprintf(&b, ", pace %.0f wpm", *s.PaceWPM)
	}
	b.WriteString("\n")
	return b.String()
}

// parseAugmentation accepts the JSON object alone or wrapped in prose or a code fence.
func parseAugmentation(content string) (*feedback.Augmentation, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrEmptyResponse
	}
	var aug feedback.Augmentation
	if err := sonic.UnmarshalString(content[start:end+1], &aug); err != nil {
		return nil, fmt.Errorf("decode augmentation: %w", err)
	}
	aug.Message = strings.TrimSpace(aug.Message)
	kept := aug.Suggestions[:0]
	for _, s := range aug.Suggestions {
		if s = strings.TrimSpace(s); s != "" && len(kept) < maxSuggestions {
			kept = append(kept, s)
		}
	}
	aug.Suggestions = kept
	if aug.Message == "" && len(aug.Suggestions) == 0 {
		return nil, ErrEmptyResponse
	}
	return &aug, nil
}
