package models

// Recommendation is the evaluator's verdict on a generated answer.
type Recommendation string

const (
	RecommendApprove  Recommendation = "APPROVE"
	RecommendImprove  Recommendation = "IMPROVE"
	RecommendReject   Recommendation = "REJECT"
	RecommendFallback Recommendation = "FALLBACK"
	RecommendError    Recommendation = "ERROR"
)

// Evaluation holds per-criterion quality scores for a generated answer.
// Scores are on a 0-10 scale; OverallScore is the model's explicit overall
// or the mean of the criteria when the model omits one.
type Evaluation struct {
	Scores         map[string]int `json:"scores"`
	OverallScore   float64        `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation"`
	// OriginalRecommendation preserves the pre-fallback verdict for audit when
	// Recommendation has been rewritten to FALLBACK.
	OriginalRecommendation Recommendation `json:"original_recommendation,omitempty"`
	Feedback               string         `json:"feedback,omitempty"`
	Raw                    string         `json:"-"`
}

// QueryState tracks a single query through the refinement loop.
// It lives only for the duration of one query's processing.
type QueryState struct {
	OriginalQuery string
	CurrentQuery  string
	Iteration     int
	MaxIterations int
}

// Status is the terminal state of one query's processing.
type Status string

const (
	StatusSuccess       Status = "SUCCESS"
	StatusError         Status = "ERROR"
	StatusMaxIterations Status = "MAX_ITERATIONS"
)

// Answer is the generator's structured output for one query.
type Answer struct {
	Text               string `json:"text"`
	SupportingEvidence string `json:"supporting_evidence,omitempty"`
	Limitations        string `json:"limitations,omitempty"`
	Raw                string `json:"-"`
}

// AnswerResult is the terminal artifact returned to the caller for one query.
// Immutable once constructed.
type AnswerResult struct {
	Query            string         `json:"query"`
	ProcessedQuery   string         `json:"processed_query,omitempty"`
	Answer           *Answer        `json:"answer"`
	SupportingChunks []*RankedChunk `json:"supporting_chunks,omitempty"`
	Evaluation       *Evaluation    `json:"evaluation,omitempty"`
	UsedFallback     bool           `json:"used_fallback"`
	// OriginalAnswer preserves the rejected primary answer when UsedFallback is true.
	OriginalAnswer *Answer `json:"original_answer,omitempty"`
	Iterations     int     `json:"iterations"`
	Status         Status  `json:"status"`
	Error          string  `json:"error,omitempty"`
}

// AskOptions toggles optional pipeline stages. Disabling a stage degrades it
// to pass-through behavior rather than skipping the query.
type AskOptions struct {
	UseQueryRefinement bool `json:"use_query_refinement"`
	UseReranking       bool `json:"use_reranking"`
	UseEvaluation      bool `json:"use_evaluation"`
	// MaxIterations bounds the refine/regenerate loop; 0 means use the configured default.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// DefaultAskOptions enables every stage.
func DefaultAskOptions() AskOptions {
	return AskOptions{
		UseQueryRefinement: true,
		UseReranking:       true,
		UseEvaluation:      true,
	}
}
