package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// FakeLLM is a scripted OpenAI-compatible chat completions endpoint. It
// routes each request to a canned reply by recognizing the stage's system
// prompt, so the real HTTP client and every prompt/parse pair is exercised.
type FakeLLM struct {
	Server *httptest.Server

	// Verdict is the RECOMMENDATION the rubric reply carries.
	Verdict atomic.Value // string

	Refinements  atomic.Int32
	Generations  atomic.Int32
	Evaluations  atomic.Int32
	RerankScores atomic.Int32
	Fallbacks    atomic.Int32
}

// NewFakeLLM starts the endpoint. Callers own the server and must Close it.
func NewFakeLLM() *FakeLLM {
	f := &FakeLLM{}
	f.Verdict.Store("APPROVE")
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// Close shuts the endpoint down.
func (f *FakeLLM) Close() {
	f.Server.Close()
}

// URL returns the endpoint base URL for config.LLMConfig.Endpoint.
func (f *FakeLLM) URL() string {
	return f.Server.URL
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (f *FakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	reply := f.route(system, user)
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": reply}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeLLM) route(system, user string) string {
	switch {
	case strings.Contains(system, "legal query processing agent"):
		f.Refinements.Add(1)
		// Echo the query so retrieval still matches the corpus.
		query := strings.TrimPrefix(user, "Process this legal query: ")
		return "REASONING: The query is already specific.\nACTION: " + query + "\nCONFIDENCE: 0.9"

	case strings.Contains(system, "legal research evaluator"):
		f.Evaluations.Add(1)
		verdict := f.Verdict.Load().(string)
		score := "9"
		if verdict != "APPROVE" {
			score = "4"
		}
		return "ACCURACY: " + score + "/10 - checked\n" +
			"COMPLETENESS: " + score + "/10 - checked\n" +
			"RELEVANCE: " + score + "/10 - checked\n" +
			"CLARITY: " + score + "/10 - checked\n" +
			"CITATIONS: " + score + "/10 - checked\n" +
			"OVERALL: " + score + "/10\n" +
			"RECOMMENDATION: " + verdict + "\n" +
			"FEEDBACK: Scripted evaluation."

	case strings.Contains(system, "legal research assistant"):
		f.Generations.Add(1)
		return "## Answer\nBased on the policy terms, the provision asked about applies as stated in the retrieved clause.\n\n" +
			"## Supporting Evidence\nThe retrieved policy sections quoted above.\n\n" +
			"## Limitations\nScripted answer for testing."

	case strings.Contains(system, "could not provide a satisfactory answer"):
		f.Fallbacks.Add(1)
		return "General legal information: please consult the full policy wording."

	case strings.Contains(user, "Rate how relevant the passage is"):
		f.RerankScores.Add(1)
		return "8"

	default:
		// Improve() has no system prompt; return a refined query.
		return "policy terms " + lastLine(user)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
