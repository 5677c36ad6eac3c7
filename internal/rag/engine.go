package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"chapter-tutor/internal/chunker"
	"chapter-tutor/internal/config"
	"chapter-tutor/internal/embedding"
	"chapter-tutor/internal/helper"
	"chapter-tutor/internal/models"
	"chapter-tutor/internal/vectorstore"
)

// ErrNothingToIndex means the chapter text produced no chunks; the
// rebuild is aborted before the store is touched.
var ErrNothingToIndex = errors.New("no chunks to index")

// Generator produces a chat completion from a system and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Engine owns the shared service handles and runs the full pipeline:
// chunk, embed, store, retrieve, synthesize.
type Engine struct {
	store     vectorstore.Store
	embedder  embedding.Client
	generator Generator
	cfg       *config.Config
	policy    embedding.RetryPolicy
}

func NewEngine(store vectorstore.Store, embedder embedding.Client, generator Generator, cfg *config.Config) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
		policy:    embedding.PolicyFromConfig(&cfg.Retry, time.Duration(cfg.EmbedLLM.Timeout)),
	}
}

// Search embeds the query and returns up to topK nearest chunks by
// ascending distance. An empty store yields an empty result: that is the
// expected uninitialized state, not an error.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = e.cfg.RAG.TopK
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		log.Warn().Msg("knowledge base is empty, ingest the chapter first")
		return nil, nil
	}

	queryEmbedding, err := embedding.EmbedWithRetry(ctx, e.embedder, query, e.policy)
	if err != nil {
		return nil, err
	}
	return e.store.Query(ctx, queryEmbedding, topK)
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	RunID     string
	Total     int
	Persisted int
	Skipped   int
}

// Ingest embeds the chunks in order and persists the survivors in one
// batch. A chunk whose embedding keeps failing is skipped, not fatal:
// partial ingestion beats losing the whole run. Chunk ids keep their
// original order regardless of skips.
func (e *Engine) Ingest(ctx context.Context, chunks []models.Chunk) (IngestReport, error) {
	runID, _ := helper.GenerateUUID()
	report := IngestReport{RunID: runID, Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}

	log.Info().Str("run_id", runID).Int("chunks", len(chunks)).Msg("embedding chunks")

	entries := make([]vectorstore.Entry, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := embedding.EmbedWithRetry(ctx, e.embedder, chunk.Text, e.policy)
		if err != nil {
			log.Warn().Err(err).Int("chunk_id", chunk.ChunkID).Msg("skipping chunk, embedding failed")
			report.Skipped++
			continue
		}
		entries = append(entries, vectorstore.Entry{
			ID:   fmt.Sprintf("chunk_%d_%d", chunk.Chapter, chunk.ChunkID),
			Text: chunk.Text,
			Metadata: map[string]string{
				vectorstore.MetaPage:    strconv.Itoa(chunk.Page),
				vectorstore.MetaChunkID: strconv.Itoa(chunk.ChunkID),
				vectorstore.MetaChapter: strconv.Itoa(chunk.Chapter),
				vectorstore.MetaSource:  chunk.Source,
			},
			Embedding: vector,
		})
	}

	persisted, err := e.store.UpsertBatch(ctx, entries)
	if err != nil {
		return report, fmt.Errorf("failed to store chunks: %w", err)
	}
	report.Persisted = persisted

	log.Info().Str("run_id", runID).Int("persisted", persisted).Int("skipped", report.Skipped).Msg("ingestion done")
	return report, nil
}

// Rebuild replaces the whole collection from the chapter text. When the
// text chunks to nothing the store is left untouched and
// ErrNothingToIndex is returned.
func (e *Engine) Rebuild(ctx context.Context, text string, startPage int) (IngestReport, error) {
	ch := chunker.New(
		e.cfg.RAG.ChunkSize,
		e.cfg.RAG.ChunkOverlap,
		e.cfg.Chapter.Number,
		e.cfg.Chapter.Source,
	)
	chunks := ch.Chunk(text, startPage)
	if len(chunks) == 0 {
		return IngestReport{}, ErrNothingToIndex
	}

	if err := e.store.Clear(ctx); err != nil {
		return IngestReport{}, fmt.Errorf("failed to clear collection: %w", err)
	}
	return e.Ingest(ctx, chunks)
}

// Stats reports the current state of the knowledge store.
type Stats struct {
	DocumentCount  int    `json:"document_count"`
	CollectionName string `json:"collection_name"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{DocumentCount: count, CollectionName: e.store.Name()}, nil
}

// Clear empties the collection.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// Generator exposes the generation handle for the quiz and outline
// consumers; nil when the service is not configured.
func (e *Engine) Generator() Generator {
	return e.generator
}
