package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapter-tutor/internal/config"
	"chapter-tutor/internal/models"
	"chapter-tutor/internal/vectorstore"
)

type fakeEmbedder struct {
	fail  map[string]bool
	calls []string
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.fail[text] {
		return nil, errors.New("embedding service unavailable")
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	v := float32(h.Sum32()%1000) / 1000
	return []float32{v, 1 - v, 0.5}, nil
}

type fakeGenerator struct {
	answer string
	err    error
	system string
	user   string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Chapter: config.ChapterConfig{
			Number:     10,
			Title:      "Anomaly Detection",
			Slug:       "anomaly_detection",
			Source:     "test chapter",
			StartPage:  419,
			EndPage:    438,
			PageOffset: 16,
		},
		RAG:      config.RAGConfig{ChunkSize: 500, ChunkOverlap: 100, TopK: 5},
		EmbedLLM: config.LLMConfig{Timeout: config.Duration(time.Second)},
		// no retries so failing fakes fail exactly once
		Retry: config.RetryConfig{Attempts: 0, BaseDelay: config.Duration(time.Millisecond), MaxDelay: config.Duration(10 * time.Millisecond)},
	}
}

func newTestEngine(t *testing.T, emb *fakeEmbedder, gen Generator) (*Engine, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore("", "chapter_10_anomaly_detection", true, "")
	require.NoError(t, err)
	return NewEngine(store, emb, gen, testConfig()), store
}

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			Text:    fmt.Sprintf("chunk text number %d", i),
			Page:    419 + i,
			ChunkID: i,
			Chapter: 10,
			Source:  "test chapter",
		}
	}
	return chunks
}

func TestEngine_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("Should persist every chunk when embedding succeeds", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, store := newTestEngine(t, emb, nil)

		report, err := engine.Ingest(ctx, testChunks(5))
		require.NoError(t, err)
		assert.Equal(t, 5, report.Persisted)
		assert.Equal(t, 0, report.Skipped)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("Should skip chunks whose embedding fails and keep the rest", func(t *testing.T) {
		chunks := testChunks(10)
		emb := &fakeEmbedder{fail: map[string]bool{
			chunks[3].Text: true,
			chunks[7].Text: true,
		}}
		engine, store := newTestEngine(t, emb, nil)

		report, err := engine.Ingest(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 10, report.Total)
		assert.Equal(t, 8, report.Persisted)
		assert.Equal(t, 2, report.Skipped)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, count)
	})

	t.Run("Should attempt embeddings in chunk order", func(t *testing.T) {
		chunks := testChunks(6)
		emb := &fakeEmbedder{fail: map[string]bool{chunks[2].Text: true}}
		engine, _ := newTestEngine(t, emb, nil)

		_, err := engine.Ingest(ctx, chunks)
		require.NoError(t, err)

		require.Len(t, emb.calls, 6)
		for i, chunk := range chunks {
			assert.Equal(t, chunk.Text, emb.calls[i])
		}
	})

	t.Run("Should report an empty run for no chunks", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, _ := newTestEngine(t, emb, nil)
		report, err := engine.Ingest(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Persisted)
	})
}

func TestEngine_Rebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Should leave the store untouched for empty chapter text", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, store := newTestEngine(t, emb, nil)
		_, err := engine.Ingest(ctx, testChunks(3))
		require.NoError(t, err)

		_, err = engine.Rebuild(ctx, "   \n\n   ", 419)
		assert.ErrorIs(t, err, ErrNothingToIndex)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Should replace previous contents", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, store := newTestEngine(t, emb, nil)
		_, err := engine.Ingest(ctx, testChunks(3))
		require.NoError(t, err)

		report, err := engine.Rebuild(ctx, "[page 420]\na fresh paragraph about detection", 419)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Persisted)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestEngine_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return empty result on an empty store without embedding", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, _ := newTestEngine(t, emb, nil)

		results, err := engine.Search(ctx, "what is an outlier", 0)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Empty(t, emb.calls, "the query must not be embedded when the store is empty")
	})

	t.Run("Should order results by ascending distance", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, _ := newTestEngine(t, emb, nil)
		_, err := engine.Ingest(ctx, testChunks(8))
		require.NoError(t, err)

		results, err := engine.Search(ctx, "chunk text number 4", 5)
		require.NoError(t, err)
		require.Len(t, results, 5)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
	})

	t.Run("Should fall back to the configured top k", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, _ := newTestEngine(t, emb, nil)
		_, err := engine.Ingest(ctx, testChunks(8))
		require.NoError(t, err)

		results, err := engine.Search(ctx, "anything", 0)
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})
}

func TestEngine_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the no-knowledge fallback on an empty store", func(t *testing.T) {
		emb := &fakeEmbedder{}
		gen := &fakeGenerator{answer: "should not be called"}
		engine, _ := newTestEngine(t, emb, gen)

		answer, err := engine.Ask(ctx, "what is an outlier")
		require.NoError(t, err)
		assert.Equal(t, models.NoKnowledgeAnswer, answer.Answer)
		assert.NotNil(t, answer.Sources)
		assert.Empty(t, answer.Sources)
		assert.Empty(t, gen.user, "generation must not run without retrieved context")
	})

	t.Run("Should synthesize a grounded answer with citations", func(t *testing.T) {
		emb := &fakeEmbedder{}
		gen := &fakeGenerator{answer: "outliers are rare observations, see page 404"}
		engine, _ := newTestEngine(t, emb, gen)

		_, err := engine.Ingest(ctx, []models.Chunk{{
			Text:    "An outlier is an observation that deviates markedly from the rest.",
			Page:    420,
			ChunkID: 0,
			Chapter: 10,
			Source:  "test chapter",
		}})
		require.NoError(t, err)

		answer, err := engine.Ask(ctx, "what is an outlier")
		require.NoError(t, err)
		assert.Equal(t, gen.answer, answer.Answer)
		require.Len(t, answer.Sources, 1)
		assert.Equal(t, 420, answer.Sources[0].PDFPage)
		assert.Equal(t, 404, answer.Sources[0].BookPage)
		assert.Contains(t, answer.Sources[0].Preview, "An outlier is an observation")

		assert.Equal(t, models.SystemPrompt, gen.system)
		assert.Contains(t, gen.user, "[source 1, PDF page 420 / book page 404]")
		assert.Contains(t, gen.user, "what is an outlier")
	})
}

func TestEngine_GenerateAnswer(t *testing.T) {
	ctx := context.Background()

	results := []vectorstore.Result{{
		Text: strings.Repeat("long chunk text ", 20),
		Metadata: map[string]string{
			vectorstore.MetaPage:    "420",
			vectorstore.MetaChunkID: "0",
			vectorstore.MetaChapter: "10",
			vectorstore.MetaSource:  "test chapter",
		},
		Distance: 0.1,
	}}

	t.Run("Should keep citations when generation fails", func(t *testing.T) {
		emb := &fakeEmbedder{}
		gen := &fakeGenerator{err: errors.New("model overloaded")}
		engine, _ := newTestEngine(t, emb, gen)

		answer := engine.GenerateAnswer(ctx, "question", results)
		assert.Contains(t, answer.Answer, "Failed to generate an answer")
		assert.Contains(t, answer.Answer, "model overloaded")
		require.Len(t, answer.Sources, 1)
		assert.Equal(t, 404, answer.Sources[0].BookPage)
	})

	t.Run("Should degrade gracefully without a generator", func(t *testing.T) {
		emb := &fakeEmbedder{}
		engine, _ := newTestEngine(t, emb, nil)

		answer := engine.GenerateAnswer(ctx, "question", results)
		assert.Contains(t, answer.Answer, "not configured")
		require.Len(t, answer.Sources, 1)
	})

	t.Run("Should bound the citation preview", func(t *testing.T) {
		emb := &fakeEmbedder{}
		gen := &fakeGenerator{answer: "ok"}
		engine, _ := newTestEngine(t, emb, gen)

		answer := engine.GenerateAnswer(ctx, "question", results)
		require.Len(t, answer.Sources, 1)
		preview := answer.Sources[0].Preview
		assert.True(t, strings.HasSuffix(preview, "..."))
		assert.LessOrEqual(t, len([]rune(preview)), models.PreviewLength+3)
	})
}
