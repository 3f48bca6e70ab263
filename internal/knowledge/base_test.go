package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "chunks.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 8
	cfg.Ingest.ChunkSize = 10
	cfg.Ingest.ChunkOverlap = 2
	return cfg
}

func testBase(t *testing.T, cfg *config.Config) *Base {
	t.Helper()
	emb, err := embedding.New(&cfg.Embedding)
	if err != nil {
		t.Fatalf("embedding.New: %v", err)
	}
	t.Cleanup(func() { _ = emb.Close() })
	return New(cfg, emb, zap.NewNop())
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBuildServesRetrieval(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)
	corpus := writeCorpus(t, map[string]string{
		"grace.txt":     "A grace period of thirty days is provided for premium payment after the due date.",
		"maternity.txt": "Maternity expenses are covered after a waiting period of twenty four months of continuous coverage.",
	})

	if base.Ready() {
		t.Fatal("base ready before build")
	}
	if err := base.Build(context.Background(), []string{corpus}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !base.Ready() {
		t.Fatal("base not ready after build")
	}

	candidates, err := base.Retrieve(context.Background(), "grace period premium payment", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	top := base.Get(candidates[0].ChunkID)
	if top == nil {
		t.Fatalf("chunk %s not in store", candidates[0].ChunkID)
	}
	if top.Metadata["source"] != "grace.txt" {
		t.Errorf("top candidate from %s, want grace.txt", top.Metadata["source"])
	}
}

func TestRetrieveBeforeBuildFails(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)
	if _, err := base.Retrieve(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error before build")
	}
	if got := base.Get("id"); got != nil {
		t.Errorf("Get before build = %v, want nil", got)
	}
}

func TestBuildEmptyCorpusFails(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)
	if err := base.Build(context.Background(), []string{t.TempDir()}); err == nil {
		t.Fatal("expected error for empty corpus")
	}
	if base.Ready() {
		t.Error("base ready after failed build")
	}
}

func TestLoadRestoresPersistedSnapshot(t *testing.T) {
	cfg := testConfig(t)
	corpus := writeCorpus(t, map[string]string{
		"policy.txt": "Pre existing diseases are excluded for the first thirty six months of the policy.",
	})

	builder := testBase(t, cfg)
	if err := builder.Build(context.Background(), []string{corpus}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	wantStats := builder.Stats()

	loaded := testBase(t, cfg)
	if err := loaded.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	gotStats := loaded.Stats()
	if gotStats.Chunks != wantStats.Chunks {
		t.Errorf("chunks = %d, want %d", gotStats.Chunks, wantStats.Chunks)
	}
	if gotStats.Vectors != wantStats.Vectors {
		t.Errorf("vectors = %d, want %d", gotStats.Vectors, wantStats.Vectors)
	}

	candidates, err := loaded.Retrieve(context.Background(), "pre existing disease exclusion", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates from loaded snapshot")
	}
}

func TestLoadFailsWithoutVectorIndex(t *testing.T) {
	cfg := testConfig(t)
	corpus := writeCorpus(t, map[string]string{
		"policy.txt": "Room rent is capped at one percent of the sum insured per day.",
	})

	builder := testBase(t, cfg)
	if err := builder.Build(context.Background(), []string{corpus}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := os.Remove(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatal(err)
	}

	loaded := testBase(t, cfg)
	if err := loaded.Load(context.Background()); err == nil {
		t.Fatal("expected error when vector index file is missing")
	}
}

func TestLoadFailsWithoutChunks(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)
	if err := base.Load(context.Background()); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestStats(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)

	if got := base.Stats(); got.Chunks != 0 {
		t.Errorf("stats before build = %+v", got)
	}

	corpus := writeCorpus(t, map[string]string{
		"a.txt": "cashless treatment is available at network hospitals subject to pre authorization",
		"b.txt": "claims must be intimated within forty eight hours of hospitalization",
	})
	if err := base.Build(context.Background(), []string{corpus}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := base.Stats()
	if got.Documents != 2 {
		t.Errorf("documents = %d, want 2", got.Documents)
	}
	if got.Chunks == 0 || got.Vectors != got.Chunks {
		t.Errorf("chunks = %d, vectors = %d", got.Chunks, got.Vectors)
	}
	if got.BuiltAt.IsZero() {
		t.Error("BuiltAt is zero")
	}
	if got.DiskBytes == 0 {
		t.Error("DiskBytes is zero after persistence")
	}
}

func TestRebuildSwapsSnapshot(t *testing.T) {
	cfg := testConfig(t)
	base := testBase(t, cfg)

	first := writeCorpus(t, map[string]string{
		"old.txt": "the old corpus talks about grace periods",
	})
	if err := base.Build(context.Background(), []string{first}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	second := writeCorpus(t, map[string]string{
		"new.txt": "the new corpus talks about maternity waiting periods",
	})
	if err := base.Build(context.Background(), []string{second}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	candidates, err := base.Retrieve(context.Background(), "maternity waiting periods", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, c := range candidates {
		ch := base.Get(c.ChunkID)
		if ch != nil && ch.Metadata["source"] == "old.txt" {
			t.Error("old corpus chunk survived rebuild")
		}
	}
}
