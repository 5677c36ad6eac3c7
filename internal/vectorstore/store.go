package vectorstore

import "context"

// Entry is one persisted unit: chunk text, its metadata, and exactly one
// embedding vector. Entries whose embedding failed upstream never reach
// the store.
type Entry struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Result is one similarity match. Distance is embedding-space
// dissimilarity: smaller is more relevant.
type Result struct {
	Text     string
	Metadata map[string]string
	Distance float32
}

// Store is a per-chapter vector collection. The only mutations are a full
// rebuild (Clear then UpsertBatch) and appending a batch; there is no
// per-id update or delete.
type Store interface {
	// UpsertBatch persists the entries in order and returns how many were
	// written. An empty batch returns 0 without touching storage.
	UpsertBatch(ctx context.Context, entries []Entry) (int, error)
	// Query returns up to k nearest entries ordered by ascending
	// distance. An empty collection yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)
	// Clear deletes and recreates the collection. Idempotent.
	Clear(ctx context.Context) error
	// Count reports the number of persisted entries.
	Count(ctx context.Context) (int, error)
	// Name identifies the collection, e.g. "chapter_10_anomaly_detection".
	Name() string
}

// Metadata keys shared by every entry.
const (
	MetaPage    = "page"
	MetaChunkID = "chunk_id"
	MetaChapter = "chapter"
	MetaSource  = "source"
)
