package tokens

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// CountSampler feeds calibration samples from the Anthropic token counting
// API. It compares the heuristic estimate against the provider-reported count
// for the same text and records the pair in the estimator's calibration store.
//
// Sampling is opt-in and intended for occasional background use; the Estimate
// hot path never performs I/O.
type CountSampler struct {
	client    *anthropic.Client
	model     string
	estimator *Estimator
}

// NewCountSampler creates a sampler for the given client and model.
func NewCountSampler(client *anthropic.Client, model string, estimator *Estimator) *CountSampler {
	return &CountSampler{
		client:    client,
		model:     model,
		estimator: estimator,
	}
}

// Sample counts text via the API and records (estimated, actual) into the
// calibration store. It returns the actual count.
func (s *CountSampler) Sample(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	estimated := s.estimator.Estimate(text, s.model)

	resp, err := s.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(s.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	actual := int(resp.InputTokens)
	s.estimator.RecordSample(s.model, estimated, actual)
	return actual, nil
}
