// Package synthesis generates a natural-language answer from retrieved
// dataset context using the configured chat model.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/scttfrdmn/aperture/internal/provider"
)

// Snippet is one piece of retrieved context, labeled by the dataset it
// came from.
type Snippet struct {
	DatasetID string
	Content   string
}

const promptTemplate = `You are an expert research assistant helping users find information in an academic media repository.

Based on the following research dataset information, please answer the user's question.

Context:
%s

User Question: %s

Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to fully answer the question, acknowledge this and provide what information is available. Include references to specific datasets when relevant.`

// Synthesizer turns a query plus context snippets into an answer via the
// chat model. It never fabricates context: callers skip it entirely when
// retrieval produced nothing.
type Synthesizer struct {
	provider provider.ModelProvider
	model    string
}

func New(p provider.ModelProvider, model string) *Synthesizer {
	return &Synthesizer{provider: p, model: model}
}

// Synthesize builds the research-assistant prompt and asks the chat model.
// The model's answer is passed through unmodified, hedging included.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, snippets []Snippet) (string, error) {
	blocks := make([]string, len(snippets))
	for i, sn := range snippets {
		blocks[i] = fmt.Sprintf("[Dataset: %s]\n%s", sn.DatasetID, sn.Content)
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), query)

	answer, err := s.provider.Chat(ctx, s.model, []provider.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("answer synthesis: %w", err)
	}
	return answer, nil
}
