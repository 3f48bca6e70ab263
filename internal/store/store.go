// Package store provides the in-memory chunk store. The store is built once
// at knowledge-base initialization and is read-only afterwards, so concurrent
// readers need no locking.
package store

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// ChunkStore holds the corpus chunks and owns them for their lifetime.
// Indices reference chunks by ID; they never copy content.
type ChunkStore struct {
	chunks []*models.Chunk
	byID   map[string]*models.Chunk
}

// New builds a chunk store from chunks. Returns an error on a duplicate or
// empty chunk ID, since index entries identify chunks by ID alone.
func New(chunks []*models.Chunk) (*ChunkStore, error) {
	byID := make(map[string]*models.Chunk, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("chunk with empty ID (source %s)", c.SourceDocID)
		}
		if _, exists := byID[c.ID]; exists {
			return nil, fmt.Errorf("duplicate chunk ID %s", c.ID)
		}
		byID[c.ID] = c
	}
	return &ChunkStore{chunks: chunks, byID: byID}, nil
}

// Get returns the chunk with the given ID, or nil if absent.
func (s *ChunkStore) Get(id string) *models.Chunk {
	return s.byID[id]
}

// All returns the chunks in ingestion order. Callers must not mutate them.
func (s *ChunkStore) All() []*models.Chunk {
	return s.chunks
}

// Len returns the number of chunks.
func (s *ChunkStore) Len() int {
	return len(s.chunks)
}
