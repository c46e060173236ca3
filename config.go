package contextfold

import (
	"fmt"

	"github.com/contextfold/contextfold/boundary"
)

// Default configuration values.
const (
	// DefaultCompressionThreshold is the soft trigger: estimated tokens of
	// unprocessed history above which compression runs, provided a semantic
	// breakpoint exists.
	DefaultCompressionThreshold = 4000

	// DefaultHardLimitThreshold is the hard trigger. Intentionally sits a
	// margin above the soft threshold to absorb estimation error.
	DefaultHardLimitThreshold = 5800

	// DefaultSlidingBufferMargin is how many extra tokens of overrun the
	// hard path tolerates rather than splitting an exchange.
	DefaultSlidingBufferMargin = 200

	// DefaultMilestoneThreshold is the layer count that triggers a
	// milestone merge.
	DefaultMilestoneThreshold = 10

	// DefaultMilestoneDistillThreshold is the milestone count that
	// triggers distillation.
	DefaultMilestoneDistillThreshold = 3

	// DefaultSummaryMaxTokens is the summarizer response budget for a
	// normal layer.
	DefaultSummaryMaxTokens = 220

	// DefaultSummaryMaxTokensCompact is the stricter budget used when the
	// source range is unusually information-dense.
	DefaultSummaryMaxTokensCompact = 150

	// DefaultMiddleLayerTokenLimit is the source-range token count above
	// which the compact budget applies.
	DefaultMiddleLayerTokenLimit = 2400

	// DefaultMilestoneMaxTokens is the summarizer response budget for a
	// milestone merge.
	DefaultMilestoneMaxTokens = 110

	// DefaultCalibrationMissThreshold is the number of consecutive turns
	// without provider-reported cache hits before the per-session offset
	// is recalculated.
	DefaultCalibrationMissThreshold = 3

	// DefaultKeepRecentCount is the recent-message count used by
	// GetOrCreateSummary when the caller passes zero.
	DefaultKeepRecentCount = 8

	// DefaultModel is the model name used for token estimation when the
	// caller does not configure one.
	DefaultModel = "claude-3-5-haiku-20241022"

	// messageOverheadTokens approximates per-message role and framing
	// overhead in the provider's chat format.
	messageOverheadTokens = 4
)

// Config holds engine configuration.
type Config struct {
	// CompressionThreshold is the soft trigger in estimated tokens.
	// Default: 4000
	CompressionThreshold int

	// HardLimitThreshold forces compression regardless of breakpoints.
	// Must be at least CompressionThreshold + SlidingBufferMargin.
	// Default: 5800
	HardLimitThreshold int

	// SlidingBufferMargin is the tolerated token overrun when the hard
	// path refuses to split a question/answer/tool-call chain.
	// Default: 200
	SlidingBufferMargin int

	// MilestoneThreshold is the layer count that triggers a milestone
	// merge. Default: 10
	MilestoneThreshold int

	// MilestoneDistillThreshold is the milestone count that triggers
	// distillation. Default: 3
	MilestoneDistillThreshold int

	// SummaryMaxTokens is the summarizer response budget per layer.
	// Default: 220
	SummaryMaxTokens int

	// SummaryMaxTokensCompact applies instead when the source range
	// exceeds MiddleLayerTokenLimit. Default: 150
	SummaryMaxTokensCompact int

	// MiddleLayerTokenLimit marks a source range as information-dense.
	// Default: 2400
	MiddleLayerTokenLimit int

	// MilestoneMaxTokens is the summarizer response budget for milestone
	// merges and distillation. Default: 110
	MilestoneMaxTokens int

	// CalibrationMissThreshold is the consecutive-miss streak that forces
	// an offset recalculation. Default: 3
	CalibrationMissThreshold int

	// KeepRecentCount is GetOrCreateSummary's default tail size.
	// Default: 8
	KeepRecentCount int

	// Model is the model name used for token estimation.
	// Default: "claude-3-5-haiku-20241022"
	Model string

	// DisableCalibration turns off the learned bias factor. Estimates
	// then use only the bucket heuristic, family multiplier and safety
	// margin.
	DisableCalibration bool

	// Alignment configures token-boundary padding of summary layers.
	Alignment boundary.Config
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		CompressionThreshold:      DefaultCompressionThreshold,
		HardLimitThreshold:        DefaultHardLimitThreshold,
		SlidingBufferMargin:       DefaultSlidingBufferMargin,
		MilestoneThreshold:        DefaultMilestoneThreshold,
		MilestoneDistillThreshold: DefaultMilestoneDistillThreshold,
		SummaryMaxTokens:          DefaultSummaryMaxTokens,
		SummaryMaxTokensCompact:   DefaultSummaryMaxTokensCompact,
		MiddleLayerTokenLimit:     DefaultMiddleLayerTokenLimit,
		MilestoneMaxTokens:        DefaultMilestoneMaxTokens,
		CalibrationMissThreshold:  DefaultCalibrationMissThreshold,
		KeepRecentCount:           DefaultKeepRecentCount,
		Model:                     DefaultModel,
		Alignment:                 boundary.DefaultConfig(),
	}
}

// ApplyDefaults fills in zero values with defaults. Booleans keep their
// zero-value meaning (calibration on, alignment per boundary.DefaultConfig
// only when the whole struct is zero).
func (c *Config) ApplyDefaults() {
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = DefaultCompressionThreshold
	}
	if c.HardLimitThreshold == 0 {
		c.HardLimitThreshold = DefaultHardLimitThreshold
	}
	if c.SlidingBufferMargin == 0 {
		c.SlidingBufferMargin = DefaultSlidingBufferMargin
	}
	if c.MilestoneThreshold == 0 {
		c.MilestoneThreshold = DefaultMilestoneThreshold
	}
	if c.MilestoneDistillThreshold == 0 {
		c.MilestoneDistillThreshold = DefaultMilestoneDistillThreshold
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if c.SummaryMaxTokensCompact == 0 {
		c.SummaryMaxTokensCompact = DefaultSummaryMaxTokensCompact
	}
	if c.MiddleLayerTokenLimit == 0 {
		c.MiddleLayerTokenLimit = DefaultMiddleLayerTokenLimit
	}
	if c.MilestoneMaxTokens == 0 {
		c.MilestoneMaxTokens = DefaultMilestoneMaxTokens
	}
	if c.CalibrationMissThreshold == 0 {
		c.CalibrationMissThreshold = DefaultCalibrationMissThreshold
	}
	if c.KeepRecentCount == 0 {
		c.KeepRecentCount = DefaultKeepRecentCount
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Alignment == (boundary.Config{}) {
		c.Alignment = boundary.DefaultConfig()
	}
}

// Validate rejects configurations that would misbehave at runtime. Invalid
// thresholds are a caller bug and must surface before any session touches
// the engine.
func (c *Config) Validate() error {
	if c.CompressionThreshold <= 0 {
		return fmt.Errorf("%w: compression_threshold must be positive, got %d",
			ErrInvalidConfig, c.CompressionThreshold)
	}
	if c.SlidingBufferMargin < 0 {
		return fmt.Errorf("%w: sliding_buffer_margin must be non-negative, got %d",
			ErrInvalidConfig, c.SlidingBufferMargin)
	}
	if c.HardLimitThreshold < c.CompressionThreshold+c.SlidingBufferMargin {
		return fmt.Errorf("%w: hard_limit_threshold (%d) must be at least compression_threshold (%d) + sliding_buffer_margin (%d)",
			ErrInvalidConfig, c.HardLimitThreshold, c.CompressionThreshold, c.SlidingBufferMargin)
	}
	if c.MilestoneThreshold < 2 {
		return fmt.Errorf("%w: milestone_threshold must be at least 2, got %d",
			ErrInvalidConfig, c.MilestoneThreshold)
	}
	if c.MilestoneDistillThreshold < 2 {
		return fmt.Errorf("%w: milestone_distill_threshold must be at least 2, got %d",
			ErrInvalidConfig, c.MilestoneDistillThreshold)
	}
	if c.SummaryMaxTokens <= 0 || c.SummaryMaxTokensCompact <= 0 || c.MilestoneMaxTokens <= 0 {
		return fmt.Errorf("%w: summary token budgets must be positive", ErrInvalidConfig)
	}
	if c.SummaryMaxTokensCompact > c.SummaryMaxTokens {
		return fmt.Errorf("%w: summary_max_tokens_compact (%d) must not exceed summary_max_tokens (%d)",
			ErrInvalidConfig, c.SummaryMaxTokensCompact, c.SummaryMaxTokens)
	}
	if c.MiddleLayerTokenLimit <= 0 {
		return fmt.Errorf("%w: middle_layer_token_limit must be positive, got %d",
			ErrInvalidConfig, c.MiddleLayerTokenLimit)
	}
	if c.CalibrationMissThreshold <= 0 {
		return fmt.Errorf("%w: calibration_miss_threshold must be positive, got %d",
			ErrInvalidConfig, c.CalibrationMissThreshold)
	}
	if c.KeepRecentCount <= 0 {
		return fmt.Errorf("%w: keep_recent_count must be positive, got %d",
			ErrInvalidConfig, c.KeepRecentCount)
	}
	if c.Alignment.Enabled && c.Alignment.Unit <= 0 {
		return fmt.Errorf("%w: alignment unit must be positive when alignment is enabled, got %d",
			ErrInvalidConfig, c.Alignment.Unit)
	}
	return nil
}
