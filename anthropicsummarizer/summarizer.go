// Package anthropicsummarizer adapts the Anthropic API to the engine's
// Summarizer interface using the streaming messages endpoint.
package anthropicsummarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/contextfold/contextfold"
)

// DefaultModel is used when no model is configured. Summaries are short and
// frequent, so a small fast model is the right default.
const DefaultModel = "claude-3-5-haiku-20241022"

// Summarizer calls the Anthropic streaming API to produce summary layers.
type Summarizer struct {
	client *anthropic.Client
	model  string
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithModel overrides the summarization model.
func WithModel(model string) Option {
	return func(s *Summarizer) {
		if model != "" {
			s.model = model
		}
	}
}

// New creates a Summarizer backed by the given client.
func New(client *anthropic.Client, opts ...Option) *Summarizer {
	s := &Summarizer{
		client: client,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize implements contextfold.Summarizer. The engine's instruction
// text becomes the system prompt; the range text is the sole user message.
func (s *Summarizer) Summarize(ctx context.Context, req contextfold.SummarizeRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("anthropicsummarizer: empty range text")
	}

	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(req.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.Instructions},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)),
		},
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("anthropicsummarizer: accumulate stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("anthropicsummarizer: %w", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("anthropicsummarizer: empty response for %s summary", req.Kind)
	}
	return out.String(), nil
}
