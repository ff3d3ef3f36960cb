package provider

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/aperture/internal/ollama"
)

// OllamaProvider adapts the internal/ollama.Client to the ModelProvider interface.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates an OllamaProvider backed by a server at baseURL.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{client: ollama.New(baseURL)}
}

func (p *OllamaProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vec, err := p.client.Embed(ctx, model, text)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return vec, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	out, err := p.client.Chat(ctx, model, msgs)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return out, nil
}

func (p *OllamaProvider) IsRunning(ctx context.Context) bool {
	return p.client.IsRunning(ctx)
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	return p.client.ListModels(ctx)
}

// HasModel reports whether the local server has the model pulled.
func (p *OllamaProvider) HasModel(ctx context.Context, name string) bool {
	return p.client.HasModel(ctx, name)
}
