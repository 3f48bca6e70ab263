// Package embedding provides text embedding providers (remote HTTP, local
// ONNX, deterministic mock) and an LRU cache shared by all of them.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// Embedder produces vector embeddings for text. All implementations return
// L2-normalized vectors so the vector index can use inner product search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New creates the embedder named by cfg.Provider.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPEmbedder(cfg), nil
	case "onnx":
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
