package generator

import "context"

// LLMClient abstracts the chat-completion provider so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings carries the provider configuration handed to concrete clients.
type LLMSettings struct {
	Model   string
	APIKey  string
	BaseURL string
	// Referer is sent as HTTP-Referer, which OpenRouter uses for attribution.
	Referer string
}
