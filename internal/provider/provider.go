// Package provider contains clients for OpenAI-compatible model APIs.
// Both embeddings and chat completions go through the same base URL, so
// self-hosted gateways (vLLM, Ollama, LiteLLM) work unchanged.
package provider

import (
	"context"
)

// Embedder produces embedding vectors for text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimensionality.
	Dimension() int
}

// ChatModel generates completions from a prompt.
type ChatModel interface {
	// Complete runs a single chat completion.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest describes one chat completion call.
type ChatRequest struct {
	// System is the system prompt.
	System string

	// User is the user message.
	User string

	// Temperature overrides the configured default when > 0.
	Temperature float64

	// MaxTokens caps the completion length when > 0.
	MaxTokens int
}

// ChatResponse holds the completion text and reported token usage.
type ChatResponse struct {
	// Text is the generated completion.
	Text string

	// Usage is the token usage reported by the provider. Zero when the
	// provider omits usage accounting.
	Usage TokenUsage
}

// TokenUsage mirrors the usage block of OpenAI-compatible responses.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
