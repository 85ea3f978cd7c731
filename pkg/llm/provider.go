package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Usage reports token consumption for a single completion.
// CachedTokens counts prompt tokens the provider served from its own
// prompt cache, when the backend reports that.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// ChatStream streams the response token by token. Every non-empty
	// delta is forwarded to onDelta; the full text and token usage are
	// returned once the stream finishes.
	ChatStream(ctx context.Context, history []Message, onDelta func(delta string), options ...Option) (string, Usage, error)
}
