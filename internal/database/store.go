//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/venture-scout/internal/index"
)

// DefaultTable holds report chunks when no table is configured.
const DefaultTable = "venture_scout_chunks"

// Store keeps report chunks and their embeddings in a pgvector table.
// Each indexed report is a collection of rows sharing a UUID.
type Store struct {
	pool   *Pool
	table  pgx.Identifier
	logger *slog.Logger
}

// NewStore creates the chunk table if needed and returns a Store.
func NewStore(ctx context.Context, pool *Pool, table string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = DefaultTable
	}

	s := &Store{
		pool:   pool,
		table:  parseTableIdentifier(table),
		logger: logger,
	}

	for _, stmt := range s.schema() {
		if _, err := pool.pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to prepare chunk table: %w", err)
		}
	}
	return s, nil
}

// schema returns the statements that prepare the chunk table.
func (s *Store) schema() []string {
	t := s.table.Sanitize()
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection uuid NOT NULL,
			chunk integer NOT NULL,
			content text NOT NULL,
			embedding vector NOT NULL,
			PRIMARY KEY (collection, chunk)
		)`, t),
	}
}

// Insert stores chunks and their vectors as a new collection, in one
// transaction, and returns it as a searchable index.
func (s *Store) Insert(ctx context.Context, chunks []string, vectors [][]float32) (*Collection, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	id := uuid.New()
	tx, err := s.pool.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := fmt.Sprintf(
		"INSERT INTO %s (collection, chunk, content, embedding) VALUES ($1, $2, $3, $4::vector)",
		s.table.Sanitize())

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(insert, id, i, c, formatVector(vectors[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}

	s.logger.Debug("stored chunk collection", "collection", id, "chunks", len(chunks))
	return &Collection{
		store:  s,
		id:     id,
		chunks: append([]string(nil), chunks...),
	}, nil
}

// searchQuery returns the similarity query for a collection. The <=>
// operator is cosine distance, so similarity is 1 - distance.
func (s *Store) searchQuery() string {
	return fmt.Sprintf(`
		SELECT chunk, content, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE collection = $2
		ORDER BY embedding <=> $1::vector, chunk
		LIMIT $3`, s.table.Sanitize())
}

// Collection is one report's chunks in a Store.
type Collection struct {
	store  *Store
	id     uuid.UUID
	chunks []string
}

var _ index.VectorIndex = (*Collection)(nil)

// ID returns the collection's identifier.
func (c *Collection) ID() uuid.UUID {
	return c.id
}

// Search implements index.VectorIndex.
func (c *Collection) Search(ctx context.Context, q index.Query, k int) ([]index.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := c.store.pool.pool.Query(ctx, c.store.searchQuery(),
		formatVector(q.Vector), c.id, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var m index.Match
		if err := rows.Scan(&m.Chunk, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	index.SortMatches(matches)
	return matches, nil
}

// Chunks implements index.VectorIndex.
func (c *Collection) Chunks() []string {
	return c.chunks
}

// Close deletes the collection's rows.
func (c *Collection) Close(ctx context.Context) error {
	_, err := c.store.pool.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE collection = $1", c.store.table.Sanitize()), c.id)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", c.id, err)
	}
	return nil
}

// parseTableIdentifier splits a table name into schema and table parts.
// Supports formats: "table", "schema.table"
func parseTableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// formatVector converts a float32 slice to pgvector text format [x,y,z].
func formatVector(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
