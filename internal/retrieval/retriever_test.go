package retrieval

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

type failingEmbedder struct{ dims int }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("endpoint down")
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("endpoint down")
}
func (f *failingEmbedder) Dimensions() int { return f.dims }
func (f *failingEmbedder) Close() error    { return nil }

func testChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "c0", Content: "A grace period of thirty days is provided for premium payment."},
		{ID: "c1", Content: "Maternity expenses are covered after a waiting period."},
		{ID: "c2", Content: "The policy covers hospitalization for accidental injury."},
	}
}

func buildRetriever(t *testing.T, emb embedding.Embedder, cfg *config.RetrievalConfig) *Retriever {
	t.Helper()
	chunks := testChunks()
	kidx := keyword.NewBM25Index(chunks)

	vidx, err := vector.NewMemoryIndex(emb.Dimensions())
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	ctx := context.Background()
	for _, c := range chunks {
		vec, err := emb.Embed(ctx, c.Content)
		if err == nil {
			if err := vidx.Add(ctx, []string{c.ID}, [][]float32{vec}); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
	}
	return New(kidx, vidx, emb, cfg, zap.NewNop())
}

func defaultCfg() *config.RetrievalConfig {
	return &config.RetrievalConfig{
		TopK:                10,
		SemanticWeight:      0.7,
		LexicalWeight:       0.3,
		SimilarityThreshold: 0,
	}
}

func TestRetrieveFusesBothLegs(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	r := buildRetriever(t, emb, defaultCfg())

	candidates, err := r.Retrieve(context.Background(), "What is the grace period?", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected candidates")
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].CombinedScore > candidates[i-1].CombinedScore {
			t.Errorf("candidates not sorted at %d", i)
		}
	}
	// The exact-term chunk must appear; BM25 guarantees it a lexical score.
	found := false
	for _, c := range candidates {
		if c.ChunkID == "c0" {
			found = true
			if c.LexicalScore <= 0 {
				t.Errorf("c0 lexical score = %f, want > 0", c.LexicalScore)
			}
		}
	}
	if !found {
		t.Error("c0 missing from candidates")
	}
}

func TestRetrieveDegradesWhenEmbeddingFails(t *testing.T) {
	r := buildRetriever(t, &failingEmbedder{dims: 32}, defaultCfg())

	candidates, err := r.Retrieve(context.Background(), "grace period", 3)
	if err != nil {
		t.Fatalf("Retrieve should degrade, got error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected lexical-only candidates")
	}
	for _, c := range candidates {
		if c.SemanticScore != 0 {
			t.Errorf("chunk %s has semantic score %f with no semantic leg", c.ChunkID, c.SemanticScore)
		}
	}
	if candidates[0].ChunkID != "c0" {
		t.Errorf("top candidate = %s, want c0", candidates[0].ChunkID)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	r := buildRetriever(t, emb, defaultCfg())

	candidates, err := r.Retrieve(context.Background(), "period covers policy", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) > 2 {
		t.Errorf("got %d candidates, want <= 2", len(candidates))
	}
}

func TestRetrieveLexicalOnlyConfig(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	cfg := &config.RetrievalConfig{TopK: 10, SemanticWeight: 0, LexicalWeight: 1.0}
	r := buildRetriever(t, emb, cfg)

	candidates, err := r.Retrieve(context.Background(), "maternity", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ChunkID != "c1" {
		t.Errorf("candidates = %v, want only c1", candidates)
	}
}

func TestFuseOverlapMergesScores(t *testing.T) {
	lex := []keyword.Result{
		{ChunkID: "a", Score: 2.0},
		{ChunkID: "b", Score: 1.0},
	}
	sem := []*vector.Result{
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.5},
	}
	fused := fuse(lex, sem, 0.3, 0.7)
	if len(fused) != 3 {
		t.Fatalf("got %d candidates, want 3", len(fused))
	}
	var b *models.RetrievalCandidate
	for i := range fused {
		if fused[i].ChunkID == "b" {
			b = &fused[i]
		}
	}
	if b == nil {
		t.Fatal("b missing")
	}
	if b.LexicalScore == 0 || b.SemanticScore == 0 {
		t.Errorf("b should carry both scores, got lex=%f sem=%f", b.LexicalScore, b.SemanticScore)
	}
	want := 0.7*b.SemanticScore + 0.3*b.LexicalScore
	if b.CombinedScore != want {
		t.Errorf("combined = %f, want %f", b.CombinedScore, want)
	}
}
