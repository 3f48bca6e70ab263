// Package models defines core data structures for chunks, retrieval candidates, and answers.
package models

// Chunk is an immutable piece of a source document with its metadata.
// Chunks are owned by the chunk store; indices reference them by ID only.
type Chunk struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SourceDocID string            `json:"source_doc_id"`
}

// RetrievalCandidate is a transient per-query scoring record produced by hybrid retrieval.
type RetrievalCandidate struct {
	ChunkID       string  `json:"chunk_id"`
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`
	CombinedScore float64 `json:"combined_score"`
}

// RankedChunk is a chunk with its re-ranking score. Ordering is descending by
// RerankScore; ties break by original retrieval rank, then chunk ID.
type RankedChunk struct {
	Chunk         *Chunk  `json:"chunk"`
	RerankScore   float64 `json:"rerank_score"`
	OriginalScore float64 `json:"original_score"`
}
