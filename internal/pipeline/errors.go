package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when a query arrives before a knowledge base has
// been built or loaded.
var ErrNotReady = errors.New("knowledge base not initialized")

// Stage identifies where in the pipeline a failure happened.
type Stage string

const (
	StageIngestion  Stage = "ingestion"
	StageEmbedding  Stage = "embedding"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageEvaluation Stage = "evaluation"
	StageFallback   Stage = "fallback"
)

// StageError wraps a failure with the stage it occurred in. Each stage has
// its own degradation policy; callers switch on Stage to apply it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with its stage. Returns nil when err is nil.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
