package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

var benchTerms = []string{
	"grace", "period", "premium", "maternity", "waiting", "exclusion",
	"cataract", "hospital", "claim", "renewal", "coverage", "deductible",
}

func benchChunks(n int) []*models.Chunk {
	chunks := make([]*models.Chunk, n)
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("policy clause %d covers %s and %s subject to %s terms",
			i, benchTerms[i%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)], benchTerms[(i+7)%len(benchTerms)])
		chunks[i] = &models.Chunk{
			ID:          fmt.Sprintf("chunk_%d", i),
			Content:     content,
			SourceDocID: fmt.Sprintf("doc_%d", i/10),
		}
	}
	return chunks
}

func BenchmarkBM25Search(b *testing.B) {
	idx := keyword.NewBM25Index(benchChunks(1000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search("grace period premium payment", 10)
	}
}

func BenchmarkBM25Build(b *testing.B) {
	chunks := benchChunks(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = keyword.NewBM25Index(chunks)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(384)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i) / 1000
		ids[i] = fmt.Sprintf("chunk_%d", i)
	}
	_ = idx.Add(ctx, ids, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10, 0)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
