package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Should apply defaults for missing values", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
chapter:
  number: 10
  title: "Anomaly Detection"
`))
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.RAG.ChunkSize)
		assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
		assert.Equal(t, 5, cfg.RAG.TopK)
		assert.Equal(t, "chromem", cfg.Store.Backend)
		assert.Equal(t, 3, cfg.Retry.Attempts)
		assert.Equal(t, Duration(time.Second), cfg.Retry.BaseDelay)
		assert.Equal(t, Duration(60*time.Second), cfg.EmbedLLM.Timeout)
		assert.Equal(t, 0.7, cfg.ChatLLM.Temperature)
		assert.Equal(t, 2000, cfg.ChatLLM.MaxTokens)
	})

	t.Run("Should keep explicit values", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
rag:
  chunk_size: 800
  chunk_overlap: 200
  top_k: 3
retry:
  attempts: 5
`))
		require.NoError(t, err)
		assert.Equal(t, 800, cfg.RAG.ChunkSize)
		assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
		assert.Equal(t, 3, cfg.RAG.TopK)
		assert.Equal(t, 5, cfg.Retry.Attempts)
	})

	t.Run("Should parse duration strings", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
chat_llm:
  timeout: 90s
retry:
  base_delay: 250ms
`))
		require.NoError(t, err)
		assert.Equal(t, Duration(90*time.Second), cfg.ChatLLM.Timeout)
		assert.Equal(t, Duration(250*time.Millisecond), cfg.Retry.BaseDelay)
	})

	t.Run("Should resolve credentials from the environment", func(t *testing.T) {
		t.Setenv("TEST_TUTOR_API_KEY", "sk-test")
		cfg, err := LoadConfig(writeConfig(t, `
embed_llm:
  provider: openai
  model: embedding-3
  key_env: TEST_TUTOR_API_KEY
`))
		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.EmbedLLM.Key)
	})

	t.Run("Should derive the collection name from the chapter", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
chapter:
  number: 10
  slug: anomaly_detection
`))
		require.NoError(t, err)
		assert.Equal(t, "chapter_10_anomaly_detection", cfg.Chapter.CollectionName())
	})

	t.Run("Should fail for a missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
