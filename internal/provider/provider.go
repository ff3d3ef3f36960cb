// Package provider abstracts the external model backend used for embedding
// generation and answer synthesis. Two implementations exist: a local Ollama
// server and any OpenAI-compatible API.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Message is a chat message passed to the synthesis model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelProvider is the contract the knowledge base consumes. Calls are
// blocking and are not retried here; failures surface to the caller.
type ModelProvider interface {
	// Embed returns the embedding vector for the given text. The vector
	// dimension is fixed per model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend offers.
	ListModels(ctx context.Context) ([]string, error)
}

// Config holds backend selection parameters.
type Config struct {
	Kind          string // "ollama" or "openai"
	OllamaBaseURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string // optional; empty uses the OpenAI default
}

// New returns the ModelProvider selected by cfg.Kind.
func New(cfg Config) (ModelProvider, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
