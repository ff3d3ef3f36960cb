package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/scttfrdmn/aperture/internal/provider"
)

type chatSpy struct {
	model    string
	messages []provider.Message
	response string
	err      error
}

func (c *chatSpy) Embed(_ context.Context, _ string, _ string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (c *chatSpy) Chat(_ context.Context, model string, messages []provider.Message) (string, error) {
	c.model = model
	c.messages = messages
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func (c *chatSpy) IsRunning(_ context.Context) bool { return true }

func (c *chatSpy) ListModels(_ context.Context) ([]string, error) { return nil, nil }

func TestSynthesizePromptLayout(t *testing.T) {
	spy := &chatSpy{response: "A comprehensive answer."}
	s := New(spy, "llama3.1")

	answer, err := s.Synthesize(context.Background(), "what coins?", []Snippet{
		{DatasetID: "ds-1", Content: "Roman bronze coins."},
		{DatasetID: "ds-2", Content: "Greek silver drachmae."},
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if answer != "A comprehensive answer." {
		t.Errorf("answer not passed through: %q", answer)
	}
	if spy.model != "llama3.1" {
		t.Errorf("got model %q, want llama3.1", spy.model)
	}
	if len(spy.messages) != 1 || spy.messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", spy.messages)
	}

	prompt := spy.messages[0].Content
	if !strings.Contains(prompt, "[Dataset: ds-1]\nRoman bronze coins.") {
		t.Errorf("first snippet not labeled in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[Dataset: ds-1]\nRoman bronze coins.\n\n[Dataset: ds-2]\nGreek silver drachmae.") {
		t.Error("snippets not separated by a blank line")
	}
	if !strings.Contains(prompt, "User Question: what coins?") {
		t.Error("query missing from prompt")
	}
	if !strings.Contains(prompt, "expert research assistant") {
		t.Error("system framing missing from prompt")
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	s := New(&chatSpy{err: errors.New("model offline")}, "llama3.1")

	if _, err := s.Synthesize(context.Background(), "q", []Snippet{{DatasetID: "d", Content: "c"}}); err == nil {
		t.Fatal("expected error when chat fails")
	}
}
