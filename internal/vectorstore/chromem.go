package vectorstore

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
)

const compress = false

// ChromemStore keeps the collection in a chromem-go database persisted
// under dbPath, so the index survives process restarts. It is a cache:
// the collection can be rebuilt from the chapter text at any time.
type ChromemStore struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dbPath        string
	encryptionKey string
}

// NewChromemStore opens (or creates) the on-disk database and the named
// collection. inMemory is for tests and snapshot-only runs.
func NewChromemStore(dbPath, collectionName string, inMemory bool, encryptionKey string) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &ChromemStore{
		db:            db,
		collection:    c,
		name:          collectionName,
		dbPath:        dbPath,
		encryptionKey: encryptionKey,
	}, nil
}

func (s *ChromemStore) Name() string { return s.name }

func (s *ChromemStore) UpsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Text,
			Metadata:  e.Metadata,
			Embedding: e.Embedding,
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	return len(docs), nil
}

func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	matches, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		// chromem reports cosine similarity, higher = closer.
		results[i] = Result{
			Text:     m.Content,
			Metadata: m.Metadata,
			Distance: 1 - m.Similarity,
		}
	}
	return results, nil
}

func (s *ChromemStore) Clear(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := s.db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	s.collection = c
	return nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Export writes an encrypted snapshot of the collection next to the
// database, for moving an in-memory index between hosts.
func (s *ChromemStore) Export(ctx context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	path := s.snapshotPath()
	if err := s.db.ExportToFile(path, compress, s.encryptionKey, s.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores a snapshot produced by Export.
func (s *ChromemStore) Import(ctx context.Context) error {
	path := s.snapshotPath()
	if err := s.db.ImportFromFile(path, s.encryptionKey, s.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := s.db.GetCollection(s.name, nil)
	if c == nil {
		return fmt.Errorf("snapshot %s does not contain collection %s", path, s.name)
	}
	s.collection = c
	return nil
}

func (s *ChromemStore) snapshotPath() string {
	return s.dbPath + "/" + s.name + ".chromem"
}
