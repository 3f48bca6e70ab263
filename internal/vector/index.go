// Package vector provides the semantic index: brute-force inner product
// search over L2-normalized embeddings.
package vector

import "context"

// Index defines vector storage and similarity search.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k hits with similarity >= threshold, best first.
	Search(ctx context.Context, query []float32, k int, threshold float64) ([]*Result, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
}

// Result is a single vector search hit. ID is the chunk ID.
type Result struct {
	ID string
	// Score is the inner product, equal to cosine similarity for
	// normalized vectors.
	Score float64
}
