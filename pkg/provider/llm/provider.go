// Package llm defines the Provider interface for Large Language Model backends.
//
// bookparser uses a model for one job: translating a sentence and glossing its
// tokens in context. Requests are single-shot completions; the response is
// parsed by the caller.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is the input to Complete.
type CompletionRequest struct {
	// SystemPrompt, if non-empty, is sent as the first message with the system
	// role.
	SystemPrompt string

	// Messages is the conversation after the system prompt.
	Messages []Message

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero leaves the provider default.
	MaxTokens int

	// JSONMode asks the provider to return a single JSON object. Providers
	// without support ignore it; callers must still parse defensively.
	JSONMode bool
}

// CompletionResponse is the output of Complete.
type CompletionResponse struct {
	// Content is the text of the first choice.
	Content string

	// Model is the model that served the request, when reported.
	Model string

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and blocks until the full response is available or
	// ctx is done. Returns an error on transport failure, on a non-success
	// response or when the backend returns no choices.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities reports the limits of the configured model.
	Capabilities() ModelCapabilities
}
