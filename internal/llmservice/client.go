package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"chapter-tutor/internal/config"
	"chapter-tutor/internal/models"
)

// ErrNotConfigured means no credential is available for the generation
// service; answer synthesis degrades instead of crashing.
var ErrNotConfigured = errors.New("generation service credential is not configured")

// Client wraps the chat completion service behind a single Generate call.
type Client struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	attempts    uint64
	baseDelay   time.Duration
}

func NewClient(cfg *config.LLMConfig, rc *config.RetryConfig) (*Client, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		if cfg.Key == "" {
			return nil, ErrNotConfigured
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return &Client{
		llm:         llm,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     time.Duration(cfg.Timeout),
		attempts:    uint64(rc.Attempts),
		baseDelay:   time.Duration(rc.BaseDelay),
	}, nil
}

// Generate runs one system+user chat completion and returns the text of
// the first choice. Service failures and per-attempt timeouts are retried
// under the configured backoff; a final failure surfaces as a
// *models.ServiceError with Op "generate".
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: system}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: user}},
		},
	}

	b := retry.WithMaxRetries(c.attempts, retry.NewExponential(c.baseDelay))
	var answer string
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		res, err := c.llm.GenerateContent(callCtx, messages,
			llms.WithTemperature(c.temperature),
			llms.WithMaxTokens(c.maxTokens),
		)
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(res.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		answer = res.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", &models.ServiceError{Op: "generate", Err: err}
	}
	return answer, nil
}
