package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *HTTPEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPEmbedder(&config.EmbeddingConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: 3,
		BatchSize:  2,
		CacheSize:  10,
		TimeoutSec: 5,
	})
}

func TestHTTPEmbedBatchNormalizesAndOrders(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := embeddingResponse{}
		// Return entries out of order to exercise index-based placement.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i + 1), 0, 0}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, vec := range vecs {
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		if math.Abs(norm-1.0) > 1e-5 {
			t.Errorf("vector %d not normalized, norm^2 = %f", i, norm)
		}
	}
}

func TestHTTPEmbedUsesCache(t *testing.T) {
	calls := 0
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := embeddingResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{1, 0, 0}})
		json.NewEncoder(w).Encode(resp)
	})

	ctx := context.Background()
	if _, err := e.Embed(ctx, "same text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Embed(ctx, "same text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 1 {
		t.Errorf("endpoint called %d times, want 1", calls)
	}
}

func TestHTTPEmbedServerError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestHTTPEmbedDimensionMismatch(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{1, 0}})
		json.NewEncoder(w).Encode(resp)
	})
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}
