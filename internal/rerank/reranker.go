// Package rerank re-scores retrieved chunks against the query and keeps the
// most relevant ones. A pairwise scorer does the real work; when none is
// available (or it fails) a lexical-overlap heuristic stands in so the
// pipeline never loses its re-ranking stage entirely.
package rerank

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// scoringCharLimit caps the chunk text handed to the scorer.
const scoringCharLimit = 1000

// PairwiseScorer scores a query-chunk pair. Higher is more relevant.
type PairwiseScorer interface {
	Score(ctx context.Context, query, chunk string) (float64, error)
}

// Reranker orders chunks by pairwise relevance to the query.
type Reranker struct {
	scorer PairwiseScorer
	cfg    *config.RerankConfig
	logger *zap.Logger
}

// New creates a reranker. scorer may be nil; the heuristic is used then.
func New(scorer PairwiseScorer, cfg *config.RerankConfig, logger *zap.Logger) *Reranker {
	return &Reranker{scorer: scorer, cfg: cfg, logger: logger}
}

// Rerank scores every chunk against the query and returns the top-k by
// rerank score. Input order is the retrieval ranking; ties keep that order,
// then fall back to chunk ID, so output is deterministic. A scorer failure
// on any chunk switches the whole batch to the heuristic. A positive
// DiversityLambda then prunes near-duplicates from the top-k cut.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []models.RankedChunk) []models.RankedChunk {
	if len(chunks) == 0 {
		return chunks
	}

	ranked := make([]models.RankedChunk, len(chunks))
	copy(ranked, chunks)

	scored := false
	if r.scorer != nil {
		scored = r.scoreWithModel(ctx, query, ranked)
	}
	if !scored {
		r.scoreWithHeuristic(query, ranked)
	}

	originalRank := make(map[string]int, len(ranked))
	for i, c := range chunks {
		originalRank[c.Chunk.ID] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RerankScore != ranked[j].RerankScore {
			return ranked[i].RerankScore > ranked[j].RerankScore
		}
		ri, rj := originalRank[ranked[i].Chunk.ID], originalRank[ranked[j].Chunk.ID]
		if ri != rj {
			return ri < rj
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})

	if r.cfg.TopK > 0 && len(ranked) > r.cfg.TopK {
		ranked = ranked[:r.cfg.TopK]
	}
	if r.cfg.DiversityLambda > 0 {
		ranked = Diversify(ranked, r.cfg.DiversityLambda)
	}
	return ranked
}

func (r *Reranker) scoreWithModel(ctx context.Context, query string, chunks []models.RankedChunk) bool {
	for i := range chunks {
		content := chunks[i].Chunk.Content
		if len(content) > scoringCharLimit {
			content = content[:scoringCharLimit]
		}
		score, err := r.scorer.Score(ctx, query, content)
		if err != nil {
			r.logger.Warn("pairwise scoring failed, using overlap heuristic",
				zap.String("chunk_id", chunks[i].Chunk.ID),
				zap.Error(err))
			return false
		}
		chunks[i].RerankScore = score
	}
	return true
}

// scoreWithHeuristic blends word-overlap similarity with the retrieval score.
func (r *Reranker) scoreWithHeuristic(query string, chunks []models.RankedChunk) {
	for i := range chunks {
		sim := jaccard(query, chunks[i].Chunk.Content)
		chunks[i].RerankScore = 0.6*sim + 0.4*chunks[i].OriginalScore
	}
}

// Diversify applies marginal-relevance selection so near-duplicate chunks do
// not crowd out distinct evidence. lambda balances relevance (0) against
// diversity (1). The top-ranked chunk is always kept.
func Diversify(chunks []models.RankedChunk, lambda float64) []models.RankedChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	selected := []models.RankedChunk{chunks[0]}
	for _, candidate := range chunks[1:] {
		maxSim := 0.0
		for _, s := range selected {
			if sim := jaccard(candidate.Chunk.Content, s.Chunk.Content); sim > maxSim {
				maxSim = sim
			}
		}
		diversity := 1.0 - maxSim
		if diversity > 0.3 || len(selected) < 3 {
			candidate.RerankScore = (1-lambda)*candidate.RerankScore + lambda*diversity
			selected = append(selected, candidate)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].RerankScore > selected[j].RerankScore
	})
	return selected
}

// jaccard returns word-set Jaccard similarity between two texts.
func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
