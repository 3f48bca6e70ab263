package refine

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

func TestProcessParsesStructuredReply(t *testing.T) {
	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return `REASONING: The user asks about payment deadlines.
ACTION: grace period for premium payment insurance policy
CONFIDENCE: 0.9`, nil
	}), zap.NewNop())

	res := r.Process(context.Background(), "What is the grace period?")
	if res.ProcessedQuery != "grace period for premium payment insurance policy" {
		t.Errorf("processed = %q", res.ProcessedQuery)
	}
	if res.Reasoning != "The user asks about payment deadlines." {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %f", res.Confidence)
	}
	if res.OriginalQuery != "What is the grace period?" {
		t.Errorf("original = %q", res.OriginalQuery)
	}
}

func TestProcessCaseInsensitiveHeaders(t *testing.T) {
	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "reasoning: ok\naction: refined query\nconfidence: 0.7", nil
	}), zap.NewNop())

	res := r.Process(context.Background(), "q")
	if res.ProcessedQuery != "refined query" {
		t.Errorf("processed = %q", res.ProcessedQuery)
	}
}

func TestProcessFallsBackOnError(t *testing.T) {
	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("timeout")
	}), zap.NewNop())

	res := r.Process(context.Background(), "original question")
	if res.ProcessedQuery != "original question" {
		t.Errorf("processed = %q, want original", res.ProcessedQuery)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", res.Confidence)
	}
}

func TestProcessFallsBackOnUnparseableReply(t *testing.T) {
	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "I cannot help with that.", nil
	}), zap.NewNop())

	res := r.Process(context.Background(), "original question")
	if res.ProcessedQuery != "original question" {
		t.Errorf("processed = %q, want original", res.ProcessedQuery)
	}
}

func TestImproveUsesReply(t *testing.T) {
	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "  more specific query  ", nil
	}), zap.NewNop())

	state := &models.QueryState{OriginalQuery: "q", CurrentQuery: "q"}
	got := r.Improve(context.Background(), state, "answer lacked citations", nil)
	if got != "more specific query" {
		t.Errorf("Improve = %q", got)
	}
}

func TestImproveKeepsQueryOnErrorOrEmpty(t *testing.T) {
	state := &models.QueryState{OriginalQuery: "q", CurrentQuery: "current"}

	r := New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("down")
	}), zap.NewNop())
	if got := r.Improve(context.Background(), state, "fb", nil); got != "current" {
		t.Errorf("Improve = %q, want current", got)
	}

	r = New(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "   ", nil
	}), zap.NewNop())
	if got := r.Improve(context.Background(), state, "fb", nil); got != "current" {
		t.Errorf("Improve = %q, want current", got)
	}
}
