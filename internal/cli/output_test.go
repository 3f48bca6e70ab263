package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func sampleResult() *models.AnswerResult {
	return &models.AnswerResult{
		Query:          "What is the grace period?",
		ProcessedQuery: "grace period premium payment duration",
		Answer: &models.Answer{
			Text:               "A grace period of thirty days applies.",
			SupportingEvidence: "Clause 4.2 defines the grace period.",
			Limitations:        "Does not cover lapsed policies.",
		},
		SupportingChunks: []*models.RankedChunk{
			{
				Chunk: &models.Chunk{
					ID:          "pol_a1",
					Content:     "A grace period of thirty days is provided for premium payment.",
					Metadata:    map[string]string{"source": "policy.pdf"},
					SourceDocID: "pol",
				},
				RerankScore: 0.91,
			},
		},
		Evaluation: &models.Evaluation{
			OverallScore:   8.4,
			Recommendation: models.RecommendApprove,
		},
		Iterations: 1,
		Status:     models.StatusSuccess,
	}
}

func TestWriteResultText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputText); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"What is the grace period?",
		"grace period premium payment duration",
		"A grace period of thirty days applies.",
		"Clause 4.2",
		"8.4/10",
		"APPROVE",
		"policy.pdf",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputJSON); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	var decoded models.AnswerResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Query != "What is the grace period?" {
		t.Errorf("query = %q", decoded.Query)
	}
	if decoded.Answer == nil || decoded.Answer.Text == "" {
		t.Error("answer lost in round trip")
	}
}

func TestWriteResultsTextSeparator(t *testing.T) {
	var buf bytes.Buffer
	results := []*models.AnswerResult{sampleResult(), sampleResult()}
	if err := WriteResults(&buf, results, OutputText); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if got := strings.Count(buf.String(), "Query: What is the grace period?"); got != 2 {
		t.Errorf("results written = %d, want 2", got)
	}
}

func TestWriteResultFallbackMarked(t *testing.T) {
	r := sampleResult()
	r.UsedFallback = true
	var buf bytes.Buffer
	if err := WriteResult(&buf, r, OutputText); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if !strings.Contains(buf.String(), "(fallback)") {
		t.Error("fallback marker missing")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"text", OutputText, false},
		{"", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("got %q", got)
	}
}
