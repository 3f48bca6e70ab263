// Package evaluate scores generated answers against a fixed rubric and
// decides whether the pipeline should approve, retry, or fall back.
package evaluate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

const rubricPrompt = `You are an expert legal research evaluator. Your task is to evaluate the quality of legal query responses.

Evaluate the response based on these criteria:
1. ACCURACY: Is the legal information correct and current?
2. COMPLETENESS: Does it adequately address all aspects of the query?
3. RELEVANCE: Is the response directly relevant to the question asked?
4. CLARITY: Is the response clear and well-structured?
5. CITATIONS: Are legal sources properly referenced?

Score each criterion from 1-10 and provide an overall score.

Format your evaluation as:
ACCURACY: X/10 - [Brief explanation]
COMPLETENESS: X/10 - [Brief explanation]
RELEVANCE: X/10 - [Brief explanation]
CLARITY: X/10 - [Brief explanation]
CITATIONS: X/10 - [Brief explanation]
OVERALL: X/10
RECOMMENDATION: [APPROVE/IMPROVE/REJECT]
FEEDBACK: [Specific suggestions for improvement if needed]`

// Criteria lists the rubric dimensions in prompt order.
var Criteria = []string{"ACCURACY", "COMPLETENESS", "RELEVANCE", "CLARITY", "CITATIONS"}

var (
	overallPattern        = regexp.MustCompile(`(?i)OVERALL:\s*(\d+)/10`)
	recommendationPattern = regexp.MustCompile(`(?i)RECOMMENDATION:\s*(APPROVE|IMPROVE|REJECT)`)
	feedbackPattern       = regexp.MustCompile(`(?is)FEEDBACK:\s*(.*)$`)
)

// Evaluator asks a judge model to score answers.
type Evaluator struct {
	completer llm.Completer
	evalModel string
	cfg       *config.PipelineConfig
	logger    *zap.Logger
}

// New creates an evaluator. evalModel may differ from the generation model.
func New(completer llm.Completer, evalModel string, cfg *config.PipelineConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{completer: completer, evalModel: evalModel, cfg: cfg, logger: logger}
}

// Evaluate scores the answer. A judge failure yields an ERROR evaluation
// with score 0 rather than an error; the pipeline treats it like a
// rejection but keeps the failure visible in the feedback.
func (e *Evaluator) Evaluate(ctx context.Context, query string, answer *models.Answer, chunks []models.RankedChunk) *models.Evaluation {
	responseText := answer.Raw
	if responseText == "" {
		responseText = answer.Text
	}
	sourcesInfo := "No sources used"
	if len(chunks) > 0 {
		sourcesInfo = fmt.Sprintf("Used %d sources", len(chunks))
	}

	input := fmt.Sprintf(`Query: %s
Response: %s
Sources: %s
Context Quality: %s

Please evaluate this legal response:`, query, responseText, sourcesInfo, contextQuality(chunks))

	reply, err := e.completer.Complete(ctx, llm.Request{
		System:      rubricPrompt,
		Prompt:      input,
		Model:       e.evalModel,
		MaxTokens:   500,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Warn("evaluation failed", zap.Error(err))
		return &models.Evaluation{
			Scores:         map[string]int{},
			Recommendation: models.RecommendError,
			Feedback:       fmt.Sprintf("Evaluation failed: %v", err),
		}
	}
	return ParseEvaluation(reply)
}

// ShouldRegenerate reports whether the pipeline should retry the query.
// REJECT always retries; IMPROVE retries only below the quality threshold.
func (e *Evaluator) ShouldRegenerate(eval *models.Evaluation) bool {
	switch eval.Recommendation {
	case models.RecommendReject, models.RecommendError:
		return true
	case models.RecommendImprove:
		return eval.OverallScore < e.cfg.MinQualityScore
	default:
		return false
	}
}

// ParseEvaluation extracts rubric scores, verdict, and feedback from the
// judge's reply. A missing criterion scores 0. A missing overall score is
// the mean of the criteria; a missing verdict is derived from the overall
// score (>= 8 approve, >= 6 improve, else reject).
func ParseEvaluation(reply string) *models.Evaluation {
	eval := &models.Evaluation{
		Scores: make(map[string]int, len(Criteria)),
		Raw:    reply,
	}

	sum := 0
	for _, criterion := range Criteria {
		pattern := regexp.MustCompile(`(?i)` + criterion + `:\s*(\d+)/10`)
		score := 0
		if m := pattern.FindStringSubmatch(reply); m != nil {
			score, _ = strconv.Atoi(m[1])
		}
		eval.Scores[criterion] = score
		sum += score
	}

	if m := overallPattern.FindStringSubmatch(reply); m != nil {
		v, _ := strconv.Atoi(m[1])
		eval.OverallScore = float64(v)
	} else {
		eval.OverallScore = float64(sum) / float64(len(Criteria))
	}

	if m := recommendationPattern.FindStringSubmatch(reply); m != nil {
		eval.Recommendation = models.Recommendation(strings.ToUpper(m[1]))
	} else {
		switch {
		case eval.OverallScore >= 8:
			eval.Recommendation = models.RecommendApprove
		case eval.OverallScore >= 6:
			eval.Recommendation = models.RecommendImprove
		default:
			eval.Recommendation = models.RecommendReject
		}
	}

	if m := feedbackPattern.FindStringSubmatch(reply); m != nil {
		eval.Feedback = strings.TrimSpace(m[1])
	} else {
		eval.Feedback = "No specific feedback provided"
	}
	return eval
}

// contextQuality summarizes the retrieved context for the judge.
func contextQuality(chunks []models.RankedChunk) string {
	if len(chunks) == 0 {
		return "No context provided"
	}
	var sum float64
	for _, c := range chunks {
		sum += c.RerankScore
	}
	avg := sum / float64(len(chunks))
	quality := "Low"
	switch {
	case avg >= 0.8:
		quality = "High"
	case avg >= 0.6:
		quality = "Medium"
	}
	return fmt.Sprintf("%d documents, %s quality (avg score: %.2f)", len(chunks), quality, avg)
}
