// Package refine rewrites user queries for better retrieval. The model is
// asked to reason about intent, produce a refined query, and report its
// confidence; a malformed or failed reply falls back to the original query
// so refinement can never make a query worse than unprocessed.
package refine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const systemPrompt = `You are a legal query processing agent. Your task is to:
1. REASON about the user's legal query to understand their intent
2. ACT by refining, expanding, or restructuring the query for better retrieval
3. OBSERVE the results and suggest improvements

For legal queries, consider:
- Legal terminology and concepts
- Jurisdiction relevance
- Case law vs statute vs regulation distinctions
- Temporal aspects (recent vs historical law)

Format your response as:
REASONING: [Your analysis of the query]
ACTION: [Refined/expanded query]
CONFIDENCE: [0.0-1.0 confidence score]`

var (
	reasoningPattern  = regexp.MustCompile(`(?is)REASONING:\s*(.+?)(?:ACTION:|CONFIDENCE:|$)`)
	actionPattern     = regexp.MustCompile(`(?is)ACTION:\s*(.+?)(?:CONFIDENCE:|$)`)
	confidencePattern = regexp.MustCompile(`(?i)CONFIDENCE:\s*([0-9]*\.?[0-9]+)`)
)

// Result holds one refinement round.
type Result struct {
	OriginalQuery  string
	ProcessedQuery string
	Reasoning      string
	Confidence     float64
	Raw            string
}

// Refiner rewrites queries via a chat completion.
type Refiner struct {
	completer llm.Completer
	logger    *zap.Logger
}

// New creates a refiner backed by completer.
func New(completer llm.Completer, logger *zap.Logger) *Refiner {
	return &Refiner{completer: completer, logger: logger}
}

// Process refines the query. Errors and unparseable replies degrade to the
// original query with zero confidence; the error is logged, not returned,
// since the pipeline proceeds either way.
func (r *Refiner) Process(ctx context.Context, query string) Result {
	reply, err := r.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      fmt.Sprintf("Process this legal query: %s", query),
		MaxTokens:   500,
		Temperature: 0.1,
	})
	if err != nil {
		r.logger.Warn("query refinement failed, using original query",
			zap.String("query", utils.Truncate(query, 80)),
			zap.Error(err))
		return Result{OriginalQuery: query, ProcessedQuery: query}
	}

	res := parseReply(reply)
	res.OriginalQuery = query
	if res.ProcessedQuery == "" {
		res.ProcessedQuery = query
	}
	return res
}

// Improve produces a follow-up refinement after a low-quality answer, using
// the evaluator's feedback and the top retrieved passages as context.
func (r *Refiner) Improve(ctx context.Context, state *models.QueryState, feedback string, chunks []models.RankedChunk) string {
	var summaries []string
	for i, c := range chunks {
		if i >= 3 {
			break
		}
		summaries = append(summaries, utils.Truncate(c.Chunk.Content, 200))
	}

	prompt := fmt.Sprintf(`Based on the initial query: %q
Retrieved documents contain: %s
Evaluator feedback: %s

Please refine the query to get better legal document matches.
Focus on legal terminology, jurisdiction, and specific legal concepts.

Refined query:`, state.CurrentQuery, strings.Join(summaries, "; "), feedback)

	reply, err := r.completer.Complete(ctx, llm.Request{
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			r.logger.Warn("query improvement failed, keeping current query", zap.Error(err))
		}
		return state.CurrentQuery
	}
	return strings.TrimSpace(reply)
}

func parseReply(reply string) Result {
	res := Result{Raw: reply}
	if m := reasoningPattern.FindStringSubmatch(reply); m != nil {
		res.Reasoning = strings.TrimSpace(m[1])
	}
	if m := actionPattern.FindStringSubmatch(reply); m != nil {
		res.ProcessedQuery = strings.TrimSpace(m[1])
	}
	if m := confidencePattern.FindStringSubmatch(reply); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			res.Confidence = v
		} else {
			res.Confidence = 0.5
		}
	}
	return res
}
