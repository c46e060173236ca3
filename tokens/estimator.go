// Package tokens provides heuristic token estimation with self-calibration.
//
// Estimates are intentionally pessimistic: under-counting risks silent context
// overflow, which is strictly worse than over-counting. Accuracy improves over
// time as real provider-reported token counts are fed back through a
// CalibrationStore.
package tokens

import (
	"math"
	"strings"
	"unicode"
)

// Family identifies a model family for estimation adjustments.
type Family string

const (
	// FamilyClaude covers Anthropic Claude models.
	FamilyClaude Family = "claude"

	// FamilyGPT covers OpenAI GPT models.
	FamilyGPT Family = "gpt"

	// FamilyGemini covers Google Gemini models.
	FamilyGemini Family = "gemini"

	// FamilyUnknown is used when the model name matches no known family.
	FamilyUnknown Family = "unknown"
)

// Chars-per-token ratios per character class. Pessimistic on purpose.
const (
	charsPerTokenCJK    = 1.5
	charsPerTokenSymbol = 1.5
	charsPerTokenDigit  = 2.0
	charsPerTokenOther  = 4.0
)

// familyMultipliers adjusts raw estimates per model family.
// Unknown families use 1.0.
var familyMultipliers = map[Family]float64{
	FamilyClaude: 1.05,
	FamilyGPT:    1.0,
	FamilyGemini: 0.95,
}

// DefaultSafetyMargin is the fixed margin applied after calibration.
const DefaultSafetyMargin = 0.05

// DetectFamily maps a model name to its family.
func DetectFamily(model string) Family {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return FamilyClaude
	case strings.Contains(m, "gpt") || strings.Contains(m, "o1") || strings.Contains(m, "o3"):
		return FamilyGPT
	case strings.Contains(m, "gemini"):
		return FamilyGemini
	default:
		return FamilyUnknown
	}
}

// Detail contains the intermediate values of a detailed estimate.
type Detail struct {
	// Tokens is the final estimate including calibration and safety margin.
	Tokens int

	// RawTokens is the bucket-heuristic estimate before any adjustment.
	RawTokens int

	// CalibratedTokens is the estimate after the family multiplier and the
	// learned bias factor, before the safety margin.
	CalibratedTokens int

	// Family is the detected model family.
	Family Family

	// Confidence is lower for unknown families and for estimates that have
	// never been calibrated against provider feedback.
	Confidence float64
}

// ExactCounter counts tokens exactly for a given text, typically backed by a
// real tokenizer or a provider API. Estimator falls back to the heuristic when
// the counter errors.
type ExactCounter interface {
	Count(text string) (int, error)
}

// Estimator approximates token counts for strings.
// The zero value is not usable; construct with NewEstimator.
type Estimator struct {
	calibration  *CalibrationStore
	safetyMargin float64
	exact        ExactCounter
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithSafetyMargin overrides the default 5% safety margin.
func WithSafetyMargin(margin float64) EstimatorOption {
	return func(e *Estimator) {
		if margin >= 0 {
			e.safetyMargin = margin
		}
	}
}

// WithExactCounter installs an exact token counter (e.g. tiktoken) used in
// place of the character heuristic when it succeeds. Calibration and the
// safety margin still apply on top.
func WithExactCounter(c ExactCounter) EstimatorOption {
	return func(e *Estimator) {
		e.exact = c
	}
}

// NewEstimator creates an Estimator. The calibration store may be nil, in
// which case no learned bias is applied.
func NewEstimator(calibration *CalibrationStore, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		calibration:  calibration,
		safetyMargin: DefaultSafetyMargin,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the token estimate for text under the given model.
// It never fails and returns at least 1 for non-empty input.
func (e *Estimator) Estimate(text, model string) int {
	return e.EstimateDetailed(text, model).Tokens
}

// EstimateDetailed returns the estimate along with its intermediate values.
func (e *Estimator) EstimateDetailed(text, model string) Detail {
	family := DetectFamily(model)

	raw := e.rawEstimate(text)

	confidence := 0.7
	if family == FamilyUnknown {
		confidence = 0.5
	}

	calibrated := raw
	if raw > 0 {
		multiplier := 1.0
		if m, ok := familyMultipliers[family]; ok {
			multiplier = m
		}
		calibrated = ceilMul(raw, multiplier)

		if e.calibration != nil {
			bias, samples := e.calibration.BiasFactor(family)
			calibrated = ceilMul(calibrated, bias)
			if samples > 0 {
				confidence = 0.85
			}
		}
	}

	final := calibrated
	if final > 0 {
		final = ceilMul(calibrated, 1.0+e.safetyMargin)
	}
	if final < 1 && len(text) > 0 {
		final = 1
	}

	return Detail{
		Tokens:           final,
		RawTokens:        raw,
		CalibratedTokens: calibrated,
		Family:           family,
		Confidence:       confidence,
	}
}

// RecordSample feeds a (estimated, actual) observation into the calibration
// store for the model's family. It is a no-op when calibration is disabled.
func (e *Estimator) RecordSample(model string, estimated, actual int) {
	if e.calibration == nil {
		return
	}
	e.calibration.RecordSample(DetectFamily(model), estimated, actual)
}

// rawEstimate classifies characters into CJK, code-symbol, digit and other
// buckets and applies per-bucket chars-per-token ratios.
func (e *Estimator) rawEstimate(text string) int {
	if text == "" {
		return 0
	}

	if e.exact != nil {
		if n, err := e.exact.Count(text); err == nil && n >= 0 {
			return n
		}
	}

	var cjk, symbol, digit, other int
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
		case r >= '0' && r <= '9':
			digit++
		case isCodeSymbol(r):
			symbol++
		default:
			other++
		}
	}

	tokens := ceilDiv(cjk, charsPerTokenCJK) +
		ceilDiv(symbol, charsPerTokenSymbol) +
		ceilDiv(digit, charsPerTokenDigit) +
		ceilDiv(other, charsPerTokenOther)

	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// isCJK reports whether r falls in the CJK, kana or hangul ranges.
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // hiragana + katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	case r >= 0xF900 && r <= 0xFAFF: // CJK compatibility ideographs
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth forms
		return true
	}
	return false
}

// isCodeSymbol reports whether r is punctuation that tokenizers tend to split
// into short tokens (braces, operators, quotes).
func isCodeSymbol(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	switch r {
	case '{', '}', '[', ']', '(', ')', '<', '>',
		'=', '+', '-', '*', '/', '%', '&', '|', '^', '~',
		';', ':', ',', '.', '!', '?', '#', '@', '$',
		'"', '\'', '`', '\\', '_':
		return true
	}
	return false
}

func ceilDiv(count int, charsPerToken float64) int {
	if count <= 0 {
		return 0
	}
	return int(math.Ceil(float64(count) / charsPerToken))
}

func ceilMul(n int, factor float64) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * factor))
}
