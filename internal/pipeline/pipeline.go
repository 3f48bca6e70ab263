// Package pipeline orchestrates the full question answering flow: query
// refinement, hybrid retrieval, re-ranking, answer generation, evaluation,
// and fallback. It owns the iteration loop for single queries and the
// stage-batched driver for query batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/refine"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Refiner rewrites queries before retrieval and between iterations.
type Refiner interface {
	Process(ctx context.Context, query string) refine.Result
	Improve(ctx context.Context, state *models.QueryState, feedback string, chunks []models.RankedChunk) string
}

// Retriever returns ranked candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.RetrievalCandidate, error)
}

// Reranker re-scores retrieved chunks against the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []models.RankedChunk) []models.RankedChunk
}

// Generator produces a grounded answer from chunks.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []models.RankedChunk) (*models.Answer, error)
}

// Evaluator scores answers and decides on regeneration.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, answer *models.Answer, chunks []models.RankedChunk) *models.Evaluation
	ShouldRegenerate(eval *models.Evaluation) bool
}

// FallbackGenerator produces an ungrounded answer; it never fails.
type FallbackGenerator interface {
	Generate(ctx context.Context, query string) *models.Answer
}

// ChunkSource resolves chunk IDs to chunks.
type ChunkSource interface {
	Get(id string) *models.Chunk
}

// Pipeline wires the stages together. Construct with New; all dependencies
// are required except that a nil logger is replaced with a no-op.
type Pipeline struct {
	refiner   Refiner
	retriever Retriever
	reranker  Reranker
	generator Generator
	evaluator Evaluator
	fallback  FallbackGenerator
	chunks    ChunkSource
	cfg       *config.PipelineConfig
	logger    *zap.Logger
}

// New creates a pipeline.
func New(
	refiner Refiner,
	retriever Retriever,
	reranker Reranker,
	generator Generator,
	evaluator Evaluator,
	fallback FallbackGenerator,
	chunks ChunkSource,
	cfg *config.PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		refiner:   refiner,
		retriever: retriever,
		generator: generator,
		reranker:  reranker,
		evaluator: evaluator,
		fallback:  fallback,
		chunks:    chunks,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessSingle runs one query through the full loop. The loop retries with
// a refined query while the evaluator asks for regeneration, bounded by
// MaxIterations. It always returns a result, never an error; failures are
// reported through the result's Status and Error fields.
func (p *Pipeline) ProcessSingle(ctx context.Context, query string, opts models.AskOptions) *models.AnswerResult {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = p.cfg.MaxIterations
	}
	if maxIter <= 0 {
		maxIter = 2
	}

	state := models.QueryState{
		OriginalQuery: query,
		CurrentQuery:  query,
		MaxIterations: maxIter,
	}
	var (
		lastEval   *models.Evaluation
		lastChunks []models.RankedChunk
	)
	processedQuery := query

	for state.Iteration < maxIter {
		state.Iteration++
		p.logger.Info("processing query",
			zap.Int("iteration", state.Iteration),
			zap.String("query", utils.Truncate(state.CurrentQuery, 100)))

		processedQuery = state.CurrentQuery
		if opts.UseQueryRefinement {
			processedQuery = p.refiner.Process(ctx, state.CurrentQuery).ProcessedQuery
		}

		chunks := p.retrieveChunks(ctx, processedQuery)
		if opts.UseReranking && len(chunks) > 0 {
			chunks = p.reranker.Rerank(ctx, processedQuery, chunks)
		}
		lastChunks = chunks

		answer, err := p.generator.Generate(ctx, state.CurrentQuery, chunks)
		if err != nil {
			p.logger.Error("generation failed",
				zap.Int("iteration", state.Iteration),
				zap.Error(err))
			if state.Iteration >= maxIter {
				return &models.AnswerResult{
					Query:          query,
					ProcessedQuery: processedQuery,
					Answer:         &models.Answer{Text: fmt.Sprintf("Error processing query: %v", err)},
					Iterations:     state.Iteration,
					Status:         models.StatusError,
					Error:          NewStageError(StageGeneration, err).Error(),
				}
			}
			continue
		}

		if !opts.UseEvaluation {
			return p.successResult(query, processedQuery, answer, chunks, nil, state.Iteration)
		}

		eval := p.evaluator.Evaluate(ctx, state.CurrentQuery, answer, chunks)
		lastEval = eval
		if state.Iteration < maxIter && p.evaluator.ShouldRegenerate(eval) {
			p.logger.Info("quality below threshold, refining query",
				zap.Float64("overall_score", eval.OverallScore),
				zap.String("recommendation", string(eval.Recommendation)))
			state.CurrentQuery = p.refiner.Improve(ctx, &state, eval.Feedback, chunks)
			continue
		}
		return p.successResult(query, processedQuery, answer, chunks, eval, state.Iteration)
	}

	return p.maxIterationsResult(query, processedQuery, lastEval, lastChunks, maxIter)
}

// maxIterationsResult is the terminal for a loop that exhausted its iteration
// budget without producing a returnable answer.
func (p *Pipeline) maxIterationsResult(query, processedQuery string, eval *models.Evaluation, chunks []models.RankedChunk, iterations int) *models.AnswerResult {
	return &models.AnswerResult{
		Query:            query,
		ProcessedQuery:   processedQuery,
		Answer:           &models.Answer{Text: fmt.Sprintf("Could not generate satisfactory response after %d iterations", iterations)},
		Evaluation:       eval,
		SupportingChunks: chunkPointers(chunks),
		Iterations:       iterations,
		Status:           models.StatusMaxIterations,
	}
}

// retrieveChunks runs retrieval and resolves candidates to chunks. A
// retrieval failure degrades to an empty context; generation then states
// its limitations instead of the query failing outright.
func (p *Pipeline) retrieveChunks(ctx context.Context, query string) []models.RankedChunk {
	candidates, err := p.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		p.logger.Warn("retrieval failed, continuing with empty context",
			zap.Error(NewStageError(StageRetrieval, err)))
		return nil
	}
	chunks := make([]models.RankedChunk, 0, len(candidates))
	for _, cand := range candidates {
		chunk := p.chunks.Get(cand.ChunkID)
		if chunk == nil {
			p.logger.Warn("candidate chunk missing from store", zap.String("chunk_id", cand.ChunkID))
			continue
		}
		chunks = append(chunks, models.RankedChunk{
			Chunk:         chunk,
			RerankScore:   cand.CombinedScore,
			OriginalScore: cand.CombinedScore,
		})
	}
	return chunks
}

func (p *Pipeline) successResult(query, processedQuery string, answer *models.Answer, chunks []models.RankedChunk, eval *models.Evaluation, iterations int) *models.AnswerResult {
	return &models.AnswerResult{
		Query:            query,
		ProcessedQuery:   processedQuery,
		Answer:           answer,
		SupportingChunks: chunkPointers(chunks),
		Evaluation:       eval,
		Iterations:       iterations,
		Status:           models.StatusSuccess,
	}
}

func chunkPointers(chunks []models.RankedChunk) []*models.RankedChunk {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]*models.RankedChunk, len(chunks))
	for i := range chunks {
		out[i] = &chunks[i]
	}
	return out
}

// ProcessBatch runs queries through the pipeline stage by stage: all
// refinements, then all retrievals, and so on, each stage fanned out under
// the configured concurrency bound. Results are returned in input order.
// A panic or failure in one query never affects its neighbors. Rejected
// answers are replaced by fallback answers in a final sub-batch, with the
// original answer and verdict preserved for audit.
func (p *Pipeline) ProcessBatch(ctx context.Context, queries []string, opts models.AskOptions) []*models.AnswerResult {
	n := len(queries)
	if n == 0 {
		return nil
	}

	maxConcurrency := int64(p.cfg.MaxConcurrency)
	if maxConcurrency <= 0 {
		maxConcurrency = 20
	}
	sem := semaphore.NewWeighted(maxConcurrency)

	// forEach runs fn for every query index under the concurrency bound.
	forEach := func(fn func(i int)) {
		done := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			i := i
			if err := sem.Acquire(ctx, 1); err != nil {
				done <- struct{}{}
				continue
			}
			go func() {
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						p.logger.Error("panic processing query", zap.Int("index", i), zap.Any("panic", r))
					}
					done <- struct{}{}
				}()
				fn(i)
			}()
		}
		for i := 0; i < n; i++ {
			<-done
		}
	}

	// Stage 1: query refinement.
	processed := make([]string, n)
	copy(processed, queries)
	if opts.UseQueryRefinement {
		forEach(func(i int) {
			processed[i] = p.refiner.Process(ctx, queries[i]).ProcessedQuery
		})
	}

	// Stage 2: hybrid retrieval.
	batchChunks := make([][]models.RankedChunk, n)
	forEach(func(i int) {
		batchChunks[i] = p.retrieveChunks(ctx, processed[i])
	})

	// Stage 3: re-ranking.
	if opts.UseReranking {
		forEach(func(i int) {
			if len(batchChunks[i]) > 0 {
				batchChunks[i] = p.reranker.Rerank(ctx, processed[i], batchChunks[i])
			}
		})
	}

	// Stage 4: answer generation.
	results := make([]*models.AnswerResult, n)
	forEach(func(i int) {
		answer, err := p.generator.Generate(ctx, queries[i], batchChunks[i])
		if err != nil {
			results[i] = &models.AnswerResult{
				Query:          queries[i],
				ProcessedQuery: processed[i],
				Answer:         &models.Answer{Text: fmt.Sprintf("Error processing query: %v", err)},
				Iterations:     1,
				Status:         models.StatusError,
				Error:          NewStageError(StageGeneration, err).Error(),
			}
			return
		}
		results[i] = p.successResult(queries[i], processed[i], answer, batchChunks[i], nil, 1)
	})

	// A failed semaphore acquire (canceled batch context) or a recovered
	// panic leaves its slot empty; every query still gets a result.
	for i := range results {
		if results[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = errors.New("query processing aborted")
			}
			results[i] = &models.AnswerResult{
				Query:          queries[i],
				ProcessedQuery: processed[i],
				Answer:         &models.Answer{Text: fmt.Sprintf("Error processing query: %v", err)},
				Iterations:     1,
				Status:         models.StatusError,
				Error:          NewStageError(StageGeneration, err).Error(),
			}
		}
	}

	// Stage 5: evaluation.
	if opts.UseEvaluation {
		forEach(func(i int) {
			if results[i].Status != models.StatusSuccess {
				return
			}
			results[i].Evaluation = p.evaluator.Evaluate(ctx, queries[i], results[i].Answer, batchChunks[i])
		})
	}

	// Stage 6: fallback sub-batch for rejected answers.
	var rejected []int
	for i, res := range results {
		if res.Evaluation != nil && res.Evaluation.Recommendation == models.RecommendReject {
			rejected = append(rejected, i)
		}
	}
	if len(rejected) > 0 {
		p.logger.Info("generating fallback answers for rejected results", zap.Int("count", len(rejected)))
		forEachIdx(ctx, sem, rejected, func(i int) {
			res := results[i]
			res.OriginalAnswer = res.Answer
			res.Answer = p.fallback.Generate(ctx, queries[i])
			res.UsedFallback = true
			res.Evaluation.OriginalRecommendation = res.Evaluation.Recommendation
			res.Evaluation.Recommendation = models.RecommendFallback
		})
	}

	return results
}

// forEachIdx fans fn out over the given indices under the semaphore.
func forEachIdx(ctx context.Context, sem *semaphore.Weighted, indices []int, fn func(i int)) {
	done := make(chan struct{}, len(indices))
	for _, i := range indices {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			fn(i)
		}()
	}
	for range indices {
		<-done
	}
}
