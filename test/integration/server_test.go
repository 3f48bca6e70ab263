// Package integration exercises the HTTP API end to end: real router, real
// knowledge base, real chat completion client against a scripted endpoint.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/evaluate"
	"github.com/hyperjump/kotae/internal/fallback"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/knowledge"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/refine"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/test/e2e"
)

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	fake := e2e.NewFakeLLM()
	t.Cleanup(fake.Close)

	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "chunks.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16
	cfg.LLM.Endpoint = fake.URL()
	cfg.LLM.Model = "scripted"

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		t.Fatalf("embedding.New: %v", err)
	}
	t.Cleanup(func() { _ = embedder.Close() })

	base := knowledge.New(cfg, embedder, zap.NewNop())
	corpusDir := t.TempDir()
	if err := e2e.BuildCorpus().WriteTo(corpusDir); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	if err := base.Build(context.Background(), []string{corpusDir}); err != nil {
		t.Fatalf("build knowledge base: %v", err)
	}

	completer := llm.NewClient(&cfg.LLM)
	p := pipeline.New(
		refine.New(completer, zap.NewNop()),
		base,
		rerank.New(rerank.NewLLMScorer(completer, ""), &cfg.Rerank, zap.NewNop()),
		generate.New(completer, &cfg.Pipeline, zap.NewNop()),
		evaluate.New(completer, cfg.LLM.EvalModel, &cfg.Pipeline, zap.NewNop()),
		fallback.New(completer, zap.NewNop()),
		base,
		&cfg.Pipeline,
		zap.NewNop(),
	)
	srv := server.NewServer(p, base, nil, cfg, zap.NewNop())
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)
	return api
}

func TestIntegration_AskOverHTTP(t *testing.T) {
	api := startAPI(t)

	body, _ := json.Marshal(map[string]string{"query": "What is the grace period for premium payment?"})
	resp, err := http.Post(api.URL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result models.AnswerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != models.StatusSuccess {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	found := false
	for _, rc := range result.SupportingChunks {
		if rc.Chunk != nil && rc.Chunk.Metadata["source"] == "grace-period.txt" {
			found = true
		}
	}
	if !found {
		t.Error("grace-period.txt not among supporting chunks")
	}
}

func TestIntegration_BatchOverHTTP(t *testing.T) {
	api := startAPI(t)

	body, _ := json.Marshal(map[string]interface{}{
		"queries": []string{
			"What is the grace period for premium payment?",
			"Does the policy cover organ donor expenses?",
		},
	})
	resp, err := http.Post(api.URL+"/api/v1/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		Results []*models.AnswerResult `json:"results"`
		Count   int                    `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("count = %d", out.Count)
	}
	for i, result := range out.Results {
		if result.Status != models.StatusSuccess {
			t.Errorf("result %d: status = %s", i, result.Status)
		}
	}
}

func TestIntegration_StatusOverHTTP(t *testing.T) {
	api := startAPI(t)

	resp, err := http.Get(api.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["ready"] != true {
		t.Error("ready = false")
	}
	if status["documents"].(float64) == 0 {
		t.Error("documents = 0")
	}
}
