// Package cli provides CLI output helpers for Kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat is the format for answer output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a format flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "text", "":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteResult writes one answer result to w in the given format.
func WriteResult(w io.Writer, result *models.AnswerResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeResultText(w, result)
	return nil
}

// WriteResults writes a batch of results. JSON output is a single array;
// text output separates results with a rule.
func WriteResults(w io.Writer, results []*models.AnswerResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, result := range results {
		if i > 0 {
			fmt.Fprintf(w, "\n═════════════════════════════════════════════════════════\n")
		}
		writeResultText(w, result)
	}
	return nil
}

func writeResultText(w io.Writer, result *models.AnswerResult) {
	fmt.Fprintf(w, "\nQuery: %s\n", result.Query)
	if result.ProcessedQuery != "" && result.ProcessedQuery != result.Query {
		fmt.Fprintf(w, "Refined: %s\n", result.ProcessedQuery)
	}
	fmt.Fprintf(w, "Status: %s", result.Status)
	if result.UsedFallback {
		fmt.Fprintf(w, " (fallback)")
	}
	fmt.Fprintln(w)

	if result.Answer != nil {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(result.Answer.Text))
		if result.Answer.SupportingEvidence != "" {
			fmt.Fprintf(w, "\nSupporting evidence:\n%s\n", strings.TrimSpace(result.Answer.SupportingEvidence))
		}
		if result.Answer.Limitations != "" {
			fmt.Fprintf(w, "\nLimitations:\n%s\n", strings.TrimSpace(result.Answer.Limitations))
		}
	}

	if result.Evaluation != nil {
		fmt.Fprintf(w, "\nQuality: %.1f/10 (%s)\n", result.Evaluation.OverallScore, result.Evaluation.Recommendation)
	}
	if len(result.SupportingChunks) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for _, rc := range result.SupportingChunks {
			if rc.Chunk == nil {
				continue
			}
			source := rc.Chunk.Metadata["source"]
			if source == "" {
				source = rc.Chunk.SourceDocID
			}
			fmt.Fprintf(w, "  [%.3f] %s: %s\n", rc.RerankScore, source, Truncate(rc.Chunk.Content, 120))
		}
	}
	if result.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", result.Error)
	}
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
