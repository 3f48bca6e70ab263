package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

// HTTPEmbedder calls a remote embeddings API (OpenAI-compatible wire format).
// Responses are cached by text, and batches are split per the configured
// batch size so a single oversized request cannot take down indexing.
type HTTPEmbedder struct {
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	cache      *EmbeddingCache
	client     *http.Client
}

// NewHTTPEmbedder creates an embedder backed by the endpoint in cfg.
func NewHTTPEmbedder(cfg *config.EmbeddingConfig) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		cache:      NewEmbeddingCache(cfg.CacheSize),
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding for a single text, using the cache when available.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sub-batches of the configured size. A failed
// sub-batch fails the whole call; callers decide how to degrade.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	batchSize := e.batchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		// Serve cached texts without a round trip.
		misses := make([]string, 0, len(batch))
		missIdx := make([]int, 0, len(batch))
		vecs := make([][]float32, len(batch))
		for i, text := range batch {
			if cached, ok := e.cache.Get(text); ok {
				vecs[i] = cached
				continue
			}
			misses = append(misses, text)
			missIdx = append(missIdx, i)
		}
		if len(misses) > 0 {
			fetched, err := e.request(ctx, misses)
			if err != nil {
				return nil, err
			}
			for i, vec := range fetched {
				vecs[missIdx[i]] = vec
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *HTTPEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, utils.Truncate(string(data), 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(parsed.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(d.Embedding), e.dimensions)
		}
		utils.NormalizeL2(d.Embedding)
		vecs[d.Index] = d.Embedding
	}
	for i, text := range texts {
		if vecs[i] == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
		e.cache.Set(text, vecs[i])
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HTTPEmbedder.
func (e *HTTPEmbedder) Close() error {
	return nil
}
