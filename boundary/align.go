// Package boundary pads text blocks to fixed token boundaries.
//
// Providers with prefix-based KV caching reuse a cached prefix only up to the
// first byte that differs from a previous request. Padding every summary
// layer to a multiple of a fixed token unit keeps the byte offsets of the
// following, already-cached layers stable when one layer changes size.
package boundary

import "strings"

// PaddingStrategy selects the filler used to reach the token boundary.
type PaddingStrategy string

const (
	// StrategyComment pads with an inert markup comment of low-entropy
	// filler characters. Never whitespace: trailing whitespace risks being
	// collapsed by downstream tokenizers, and meaningful-looking tokens
	// would dilute model attention.
	StrategyComment PaddingStrategy = "comment"

	// StrategyWhitespace pads with trailing newlines.
	StrategyWhitespace PaddingStrategy = "whitespace"

	// StrategyMarker pads with a short repeated literal token.
	StrategyMarker PaddingStrategy = "marker"

	// StrategyNone disables padding entirely. Used for providers without
	// prefix caching.
	StrategyNone PaddingStrategy = "none"
)

// DefaultUnit is the default token boundary unit.
const DefaultUnit = 16

// markerLiteral is the literal repeated by StrategyMarker.
const markerLiteral = "~"

// maxFillerChars bounds the padding loop so a misbehaving estimator cannot
// make Align spin forever.
const maxFillerChars = 4096

// Config controls alignment behavior.
type Config struct {
	// Enabled toggles alignment. Disabled aligners return input unchanged.
	Enabled bool

	// Unit is the token boundary to pad to. Must be positive when enabled.
	Unit int

	// Strategy selects the filler type.
	Strategy PaddingStrategy
}

// DefaultConfig returns the default alignment configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Unit:     DefaultUnit,
		Strategy: StrategyComment,
	}
}

// EstimateFunc sizes a string in tokens. The aligner and its callers must
// share the same estimator so padding and accounting agree.
type EstimateFunc func(text string) int

// Aligner pads text to the configured token boundary.
type Aligner struct {
	config   Config
	estimate EstimateFunc
}

// New creates an Aligner. A nil estimate function or a non-positive unit
// yields a pass-through aligner.
func New(config Config, estimate EstimateFunc) *Aligner {
	if estimate == nil || config.Unit <= 0 {
		config.Enabled = false
	}
	return &Aligner{config: config, estimate: estimate}
}

// Align returns text padded so its estimated token count is a multiple of the
// configured unit. Already-aligned and empty input is returned unchanged.
func (a *Aligner) Align(text string) string {
	if !a.config.Enabled || a.config.Strategy == StrategyNone || text == "" {
		return text
	}
	if a.estimate(text)%a.config.Unit == 0 {
		return text
	}

	switch a.config.Strategy {
	case StrategyWhitespace:
		return a.pad(text, func(n int) string {
			return strings.Repeat("\n", n)
		})
	case StrategyMarker:
		return a.pad(text, func(n int) string {
			return "\n" + strings.Repeat(markerLiteral, n)
		})
	default:
		return a.pad(text, func(n int) string {
			return "\n<!-- " + strings.Repeat(markerLiteral, n) + " -->"
		})
	}
}

// IsAligned reports whether text already sits on the token boundary.
func (a *Aligner) IsAligned(text string) bool {
	if !a.config.Enabled || a.config.Unit <= 0 {
		return true
	}
	return a.estimate(text)%a.config.Unit == 0
}

// Config returns the aligner's configuration.
func (a *Aligner) Config() Config {
	return a.config
}

// pad grows the filler one character at a time until the estimate lands on
// the boundary. Estimates are monotonic in added characters, so the loop
// terminates; the cap guards against estimators that are not.
func (a *Aligner) pad(text string, build func(n int) string) string {
	for n := 1; n <= maxFillerChars; n++ {
		candidate := text + build(n)
		if a.estimate(candidate)%a.config.Unit == 0 {
			return candidate
		}
	}
	return text
}
