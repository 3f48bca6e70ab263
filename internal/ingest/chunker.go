package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits document text into overlapping word-based windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into chunks carrying the source metadata. Chunk IDs are
// prefixed with the document ID so a chunk's origin is visible in logs.
func (c *Chunker) Chunk(docID, source, text string) []*models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []*models.Chunk
	chunkIndex := 0
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, &models.Chunk{
			ID:      fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
			Content: strings.Join(words[i:end], " "),
			Metadata: map[string]string{
				"source":      source,
				"chunk_index": fmt.Sprintf("%d", chunkIndex),
			},
			SourceDocID: docID,
		})
		chunkIndex++
		if end >= len(words) {
			break
		}
	}
	return chunks
}
