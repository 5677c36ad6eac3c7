package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"chapter-tutor/internal/config"
)

// ErrNotConfigured means no credential is available for the embedding
// service. Callers treat question answering and ingestion as disabled
// rather than crashing.
var ErrNotConfigured = errors.New("embedding service credential is not configured")

// Client is the minimal embedding surface the pipeline needs.
// *embeddings.EmbedderImpl satisfies it.
type Client interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the configured embedder. The openai provider covers
// any openai-compatible endpoint; ollama talks to a local server and
// needs no credential.
func NewEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama LLM: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	default:
		if cfg.Key == "" {
			return nil, ErrNotConfigured
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	}
}
