// Package llm provides the chat completion client shared by the refinement,
// generation, evaluation, and fallback stages.
package llm

import "context"

// Request is a single chat completion call.
type Request struct {
	// System is the system prompt; empty means none.
	System string
	// Prompt is the user message.
	Prompt string
	// Model overrides the client default when non-empty.
	Model string
	// MaxTokens caps the completion length; 0 uses the client default.
	MaxTokens int
	// Temperature overrides the client default when >= 0. Pass -1 to inherit.
	Temperature float64
}

// Completer produces a text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface, mirroring
// http.HandlerFunc. Used heavily in tests.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
