//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package rag

import (
	"context"

	"github.com/pgEdge/venture-scout/internal/database"
	"github.com/pgEdge/venture-scout/internal/index"
)

// VectorStore turns embedded chunks into a searchable index.
type VectorStore interface {
	Build(ctx context.Context, chunks []string, vectors [][]float32) (index.VectorIndex, error)
}

// MemoryStore builds in-process exact cosine indexes.
type MemoryStore struct{}

// Build implements VectorStore.
func (MemoryStore) Build(_ context.Context, chunks []string, vectors [][]float32) (index.VectorIndex, error) {
	m, err := index.NewMemory(chunks, vectors)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PGVectorStore keeps each report's chunks as a collection in PostgreSQL.
type PGVectorStore struct {
	Store *database.Store
}

// Build implements VectorStore.
func (p PGVectorStore) Build(ctx context.Context, chunks []string, vectors [][]float32) (index.VectorIndex, error) {
	c, err := p.Store.Insert(ctx, chunks, vectors)
	if err != nil {
		return nil, err
	}
	return c, nil
}
