package contextfold

import "sync/atomic"

// Metrics is a point-in-time snapshot of the engine's global counters.
type Metrics struct {
	TotalRequests          uint64
	CacheHits              uint64
	CacheMisses            uint64
	LayerCreations         uint64
	MilestoneCreations     uint64
	HardLimitTriggers      uint64
	MilestoneDistillations uint64
	CalibrationAdjustments uint64
}

// engineMetrics holds the live counters. All fields are updated atomically
// so metric bumps never contend with session locks.
type engineMetrics struct {
	totalRequests          atomic.Uint64
	cacheHits              atomic.Uint64
	cacheMisses            atomic.Uint64
	layerCreations         atomic.Uint64
	milestoneCreations     atomic.Uint64
	hardLimitTriggers      atomic.Uint64
	milestoneDistillations atomic.Uint64
	calibrationAdjustments atomic.Uint64
}

func (m *engineMetrics) snapshot() Metrics {
	return Metrics{
		TotalRequests:          m.totalRequests.Load(),
		CacheHits:              m.cacheHits.Load(),
		CacheMisses:            m.cacheMisses.Load(),
		LayerCreations:         m.layerCreations.Load(),
		MilestoneCreations:     m.milestoneCreations.Load(),
		HardLimitTriggers:      m.hardLimitTriggers.Load(),
		MilestoneDistillations: m.milestoneDistillations.Load(),
		CalibrationAdjustments: m.calibrationAdjustments.Load(),
	}
}

// SessionStats describes one session's compression state.
type SessionStats struct {
	// LayerCount is the number of active non-milestone summary layers.
	LayerCount int

	// MilestoneCount is the number of active milestone layers.
	MilestoneCount int

	// TotalTokens is the aligned token count across all active layers.
	TotalTokens int

	// ProcessedMessages is how much raw history has been folded into
	// layers.
	ProcessedMessages int

	// ConsecutiveCacheMisses counts turns without provider-reported cache
	// hits.
	ConsecutiveCacheMisses int
}
