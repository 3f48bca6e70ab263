// Package generate produces grounded answers from retrieved chunks. The
// model is instructed to answer only from the supplied context and to
// structure the reply into answer, evidence, and limitations sections.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const systemPrompt = `You are a legal research assistant specializing in analyzing legal documents and providing comprehensive answers to legal queries.

Guidelines for responses:
1. Provide accurate, well-structured answers based solely on the provided context
2. Cite specific sections, cases, or legal principles when available
3. If information is insufficient, clearly state limitations
4. Use legal terminology appropriately
5. Structure responses with clear headings and bullet points when helpful
6. Include relevant jurisdiction information when available
7. Distinguish between different types of legal sources (statutes, case law, regulations)

VERY IMPORTANT GUIDELINES:
- Always make sure to provide responses in maximum 5 sentences.

Format your response as:
## Answer
[Main response to the query]

## Supporting Evidence
[Specific citations and references from the provided documents]

## Limitations
[Any limitations or gaps in the available information]`

var (
	answerPattern      = regexp.MustCompile(`(?is)## Answer\s*\n(.*?)(?:## |$)`)
	evidencePattern    = regexp.MustCompile(`(?is)## Supporting Evidence\s*\n(.*?)(?:## |$)`)
	limitationsPattern = regexp.MustCompile(`(?is)## Limitations\s*\n(.*?)(?:## |$)`)
)

// Generator builds prompts from ranked chunks and parses structured answers.
type Generator struct {
	completer llm.Completer
	cfg       *config.PipelineConfig
	logger    *zap.Logger
}

// New creates a generator backed by completer.
func New(completer llm.Completer, cfg *config.PipelineConfig, logger *zap.Logger) *Generator {
	return &Generator{completer: completer, cfg: cfg, logger: logger}
}

// Generate answers the query from the given chunks. A completion failure is
// returned as an error; the caller decides whether to surface an apology
// answer or fail the query.
func (g *Generator) Generate(ctx context.Context, query string, chunks []models.RankedChunk) (*models.Answer, error) {
	prompt := g.buildPrompt(query, chunks)

	reply, err := g.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation: %w", err)
	}
	reply = strings.TrimSpace(reply)

	answer := parseStructured(reply)
	if answer.Text == "" {
		// Unstructured reply; keep the whole text as the answer rather
		// than losing it.
		answer.Text = reply
	}
	return answer, nil
}

// buildPrompt assembles the context block. Each chunk contributes its
// source, truncated content, and relevance score, capped at the configured
// chunk count and per-chunk character budget.
func (g *Generator) buildPrompt(query string, chunks []models.RankedChunk) string {
	maxChunks := g.cfg.MaxChunksPerQuery
	if maxChunks <= 0 || maxChunks > len(chunks) {
		maxChunks = len(chunks)
	}
	charBudget := g.cfg.ChunkCharBudget
	if charBudget <= 0 {
		charBudget = 800
	}

	var contextParts []string
	for i := 0; i < maxChunks; i++ {
		c := chunks[i]
		source := c.Chunk.Metadata["source"]
		if source == "" {
			source = "Unknown"
		}
		contextParts = append(contextParts, fmt.Sprintf(
			"Document %d:\nSource: %s\nContent: %s\nRelevance Score: %.4f\n",
			i+1, source, utils.Truncate(c.Chunk.Content, charBudget), c.RerankScore))
	}

	return fmt.Sprintf(`Legal Query: %s

Relevant Legal Documents:
%s

Based on the above legal documents, please provide a comprehensive answer to the query.`,
		query, strings.Join(contextParts, "\n"))
}

func parseStructured(reply string) *models.Answer {
	answer := &models.Answer{Raw: reply}
	if m := answerPattern.FindStringSubmatch(reply); m != nil {
		answer.Text = strings.TrimSpace(m[1])
	}
	if m := evidencePattern.FindStringSubmatch(reply); m != nil {
		answer.SupportingEvidence = strings.TrimSpace(m[1])
	}
	if m := limitationsPattern.FindStringSubmatch(reply); m != nil {
		answer.Limitations = strings.TrimSpace(m[1])
	}
	return answer
}
