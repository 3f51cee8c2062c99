//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package llm

import (
	"context"
	"fmt"
)

// IndexedEmbedding is one entry of an OpenAI style embeddings response.
type IndexedEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// OrderEmbeddings places data by index so the result matches the order of
// the n inputs. Every input must have an embedding.
func OrderEmbeddings(n int, data []IndexedEmbedding) ([][]float32, error) {
	embeddings := make([][]float32, n)
	for _, d := range data {
		if d.Index >= 0 && d.Index < n {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d of %d", i, n)
		}
	}
	return embeddings, nil
}

// BatchFunc embeds the texts of a single provider request.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbedInBatches sends texts in requests of at most size inputs, one after
// another, and returns the embeddings in input order. A size of 0 or less
// sends everything at once.
func EmbedInBatches(ctx context.Context, texts []string, size int, embed BatchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(batch))
		}
		out = append(out, batch...)
	}
	return out, nil
}

// EmbedOne embeds a single text through a batch call.
func EmbedOne(ctx context.Context, text string, embed BatchFunc) ([]float32, error) {
	embeddings, err := embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}
