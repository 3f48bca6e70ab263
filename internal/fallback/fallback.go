// Package fallback answers queries from the model's general knowledge when
// the grounded answer was rejected. Its output is always marked as general
// guidance, never as document-grounded.
package fallback

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const systemPrompt = `You are a knowledgeable legal assistant. The user has asked a legal question, but the specialized document search could not provide a satisfactory answer from the available legal documents.

Please provide a helpful response based on your general legal knowledge. Follow these guidelines:

make sure to: give answer in maximum 5 sentences

Be helpful but cautious, and always emphasize the importance of proper legal counsel.`

// Disclaimer accompanies every fallback answer.
const Disclaimer = "This response is based on general legal principles and is not specific legal advice."

// safeAnswer is returned when even the fallback completion fails. It makes
// no legal claims, so it is always safe to show.
const safeAnswer = "I apologize, but I'm unable to provide a comprehensive answer to your legal question at this time. Legal matters can be complex and fact-specific. I strongly recommend consulting with a qualified attorney who can provide advice tailored to your specific situation and jurisdiction."

// Generator produces ungrounded general-knowledge answers.
type Generator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// New creates a fallback generator backed by completer.
func New(completer llm.Completer, logger *zap.Logger) *Generator {
	return &Generator{completer: completer, logger: logger}
}

// Generate answers the query without document context. It never fails: a
// completion error degrades to the fixed safe answer.
func (g *Generator) Generate(ctx context.Context, query string) *models.Answer {
	prompt := "Legal Query: " + query + `

Please provide a helpful general response based on legal principles and common practices. Remember to include appropriate disclaimers about seeking professional legal advice.`

	reply, err := g.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			g.logger.Warn("fallback generation failed, using safe answer",
				zap.String("query", utils.Truncate(query, 80)),
				zap.Error(err))
		}
		return &models.Answer{
			Text:        safeAnswer,
			Limitations: Disclaimer,
		}
	}
	return &models.Answer{
		Text:        strings.TrimSpace(reply),
		Limitations: Disclaimer,
		Raw:         reply,
	}
}
