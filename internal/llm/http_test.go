package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.LLMConfig{
		Endpoint:    srv.URL,
		Model:       "default-model",
		MaxTokens:   100,
		Temperature: 0.2,
		TimeoutSec:  5,
	})
}

func TestCompleteSendsMessagesAndReturnsContent(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{})
		resp.Choices[0].Message.Content = "hello"
		json.NewEncoder(w).Encode(resp)
	})

	out, err := c.Complete(context.Background(), Request{
		System:      "be terse",
		Prompt:      "say hello",
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Errorf("content = %q", out)
	}
	if got.Model != "default-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %v", got.Messages)
	}
	if got.Temperature != 0.2 {
		t.Errorf("temperature = %f, want client default", got.Temperature)
	}
}

func TestCompleteModelOverride(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{})
		json.NewEncoder(w).Encode(resp)
	})
	if _, err := c.Complete(context.Background(), Request{Prompt: "x", Model: "eval-model", Temperature: -1}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Model != "eval-model" {
		t.Errorf("model = %q, want eval-model", got.Model)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chatResponse{})
			},
		},
		{
			name: "api error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":{"message":"bad model"}}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			if _, err := c.Complete(context.Background(), Request{Prompt: "x", Temperature: -1}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
