// Package keyword provides lexical (BM25) indexing and search over chunks.
package keyword

// Result is a single lexical search hit.
type Result struct {
	ChunkID string
	Score   float64
}

// Index defines lexical search operations. Implementations are built once
// over the full corpus and are read-only afterwards.
type Index interface {
	// Search returns up to limit chunks scored against the query, best first.
	// Chunks with a zero score are excluded.
	Search(query string, limit int) []Result
	// DocCount returns the number of indexed chunks.
	DocCount() int
}
