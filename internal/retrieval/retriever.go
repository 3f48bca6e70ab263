// Package retrieval runs hybrid (lexical + semantic) retrieval over the
// chunk corpus and fuses the two score distributions into a single ranking.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Retriever combines BM25 lexical search with vector similarity search.
// Each leg contributes a min-max normalized score; the fused score is the
// weighted sum of the two.
type Retriever struct {
	keywordIndex keyword.Index
	vectorIndex  vector.Index
	embedder     embedding.Embedder
	cfg          *config.RetrievalConfig
	logger       *zap.Logger
}

// New creates a retriever with the given dependencies.
func New(
	keywordIndex keyword.Index,
	vectorIndex vector.Index,
	embedder embedding.Embedder,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) *Retriever {
	return &Retriever{
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		embedder:     embedder,
		cfg:          cfg,
		logger:       logger,
	}
}

// Retrieve returns the top-k chunks for the query by fused score. The two
// legs run concurrently. A semantic-leg failure (embedding or index error)
// degrades retrieval to lexical-only rather than failing the query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievalCandidate, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	// Each leg over-fetches so fusion can promote chunks that only one
	// leg found.
	poolSize := 2 * k

	var (
		lexResults []keyword.Result
		semResults []*vector.Result
		semErr     error
		wg         sync.WaitGroup
	)

	if r.cfg.LexicalWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexResults = r.keywordIndex.Search(query, poolSize)
		}()
	}

	if r.cfg.SemanticWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queryVec, err := r.embedder.Embed(ctx, query)
			if err != nil {
				semErr = fmt.Errorf("embed query: %w", err)
				return
			}
			results, err := r.vectorIndex.Search(ctx, queryVec, poolSize, r.cfg.SimilarityThreshold)
			if err != nil {
				semErr = fmt.Errorf("vector search: %w", err)
				return
			}
			semResults = results
		}()
	}

	wg.Wait()
	if semErr != nil {
		r.logger.Warn("semantic retrieval degraded to lexical only", zap.Error(semErr))
	}

	candidates := fuse(lexResults, semResults, r.cfg.LexicalWeight, r.cfg.SemanticWeight)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// fuse merges the two result lists by chunk ID, min-max normalizes each
// leg's scores over its own candidates, and combines them by weight.
// Ordering is by combined score descending with chunk ID as the tie-break.
func fuse(lex []keyword.Result, sem []*vector.Result, lexWeight, semWeight float64) []models.RetrievalCandidate {
	lexScores := make([]float64, len(lex))
	for i, r := range lex {
		lexScores[i] = r.Score
	}
	semScores := make([]float64, len(sem))
	for i, r := range sem {
		semScores[i] = r.Score
	}
	lexNorm := utils.MinMaxNormalize(lexScores)
	semNorm := utils.MinMaxNormalize(semScores)

	byID := make(map[string]*models.RetrievalCandidate)
	order := make([]string, 0, len(lex)+len(sem))
	for i, r := range lex {
		c := &models.RetrievalCandidate{ChunkID: r.ChunkID, LexicalScore: lexNorm[i]}
		byID[r.ChunkID] = c
		order = append(order, r.ChunkID)
	}
	for i, r := range sem {
		if c, ok := byID[r.ID]; ok {
			c.SemanticScore = semNorm[i]
			continue
		}
		byID[r.ID] = &models.RetrievalCandidate{ChunkID: r.ID, SemanticScore: semNorm[i]}
		order = append(order, r.ID)
	}

	candidates := make([]models.RetrievalCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.CombinedScore = semWeight*c.SemanticScore + lexWeight*c.LexicalScore
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
	return candidates
}
