package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// chunkRow is one persisted chunk; the vector(768) column type must match
// the embedding model's dimensionality.
type chunkRow struct {
	bun.BaseModel `bun:"table:chapter_chunks,alias:c"`
	ID            string    `bun:"id,pk"`
	Content       string    `bun:"content,notnull"`
	Page          int       `bun:"page,notnull"`
	ChunkID       int       `bun:"chunk_id,notnull"`
	Chapter       int       `bun:"chapter,notnull"`
	Source        string    `bun:"source,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
	Distance      float32   `bun:"distance,scanonly"`
}

// PgStore is the pgvector-backed alternative to ChromemStore, for
// deployments that already run Postgres. One table holds the single
// chapter's collection.
type PgStore struct {
	db   *bun.DB
	name string
}

func NewPgStore(ctx context.Context, dsn, password, collectionName string, debug bool) (*PgStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn+"?sslmode=disable"),
		pgdriver.WithPassword(password),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	s := &PgStore{db: db, name: collectionName}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgStore) Name() string { return s.name }

func (s *PgStore) Close() error { return s.db.Close() }

func (s *PgStore) createTable(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (s *PgStore) UpsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]chunkRow, len(entries))
	for i, e := range entries {
		rows[i] = chunkRow{
			ID:        e.ID,
			Content:   e.Text,
			Page:      atoiMeta(e.Metadata[MetaPage]),
			ChunkID:   atoiMeta(e.Metadata[MetaChunkID]),
			Chapter:   atoiMeta(e.Metadata[MetaChapter]),
			Source:    e.Metadata[MetaSource],
			Embedding: e.Embedding,
		}
	}
	res, err := s.db.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(rows), nil
	}
	return int(n), nil
}

func (s *PgStore) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var rows []chunkRow
	err = s.db.NewSelect().
		Model(&rows).
		ColumnExpr("c.*").
		ColumnExpr("c.embedding <-> ? AS distance", embedding).
		OrderExpr("c.embedding <-> ?", embedding).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{
			Text: r.Content,
			Metadata: map[string]string{
				MetaPage:    fmt.Sprintf("%d", r.Page),
				MetaChunkID: fmt.Sprintf("%d", r.ChunkID),
				MetaChapter: fmt.Sprintf("%d", r.Chapter),
				MetaSource:  r.Source,
			},
			Distance: r.Distance,
		}
	}
	return results, nil
}

func (s *PgStore) Clear(ctx context.Context) error {
	if _, err := s.db.NewDropTable().Model((*chunkRow)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return s.createTable(ctx)
}

func (s *PgStore) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*chunkRow)(nil)).Count(ctx)
}

func atoiMeta(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
