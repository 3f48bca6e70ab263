package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hyperjump/kotae/internal/llm"
)

var scorePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// LLMScorer scores query-chunk relevance with a chat completion. The model
// is asked for a bare 0-10 number; the first number in the reply is used.
type LLMScorer struct {
	completer llm.Completer
	model     string
}

// NewLLMScorer creates a pairwise scorer backed by completer. model may be
// empty to use the completer's default.
func NewLLMScorer(completer llm.Completer, model string) *LLMScorer {
	return &LLMScorer{completer: completer, model: model}
}

// Score asks the model to rate the passage's relevance to the query.
// Returned scores are scaled to 0-1.
func (s *LLMScorer) Score(ctx context.Context, query, chunk string) (float64, error) {
	prompt := fmt.Sprintf(`Rate how relevant the passage is to the question on a scale of 0 to 10.
Respond with only the number.

Question: %s

Passage: %s`, query, chunk)

	reply, err := s.completer.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       s.model,
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return 0, fmt.Errorf("relevance scoring: %w", err)
	}

	match := scorePattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("no score in scorer reply: %q", reply)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", match, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10, nil
}
