package contextfold

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextfold/contextfold/boundary"
	"github.com/contextfold/contextfold/breakpoint"
	"github.com/contextfold/contextfold/tokens"
)

// Engine is the compression orchestrator. It owns every session's
// compression cache and is safe for concurrent use.
type Engine struct {
	config     Config
	logger     Logger
	summarizer Summarizer

	calibration *tokens.CalibrationStore
	estimator   *tokens.Estimator
	aligner     *boundary.Aligner
	detector    *breakpoint.Detector

	exactCounter tokens.ExactCounter

	mu       sync.Mutex
	sessions map[string]*sessionCache

	metrics engineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards all output.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSummarizer sets the summarization call used to build layers. An
// engine without one can still estimate, calibrate and serve cached
// summaries, but every compression attempt fails with ErrNoSummarizer.
func WithSummarizer(summarizer Summarizer) Option {
	return func(e *Engine) {
		e.summarizer = summarizer
	}
}

// WithCalibrationStore injects a shared calibration store. Useful when
// several engines should learn from the same provider feedback, or when a
// test needs to inspect the store directly.
func WithCalibrationStore(store *tokens.CalibrationStore) Option {
	return func(e *Engine) {
		e.calibration = store
	}
}

// WithExactCounter installs an exact token counter (e.g. a tiktoken
// encoding) used in place of the character heuristic when it succeeds.
func WithExactCounter(counter tokens.ExactCounter) Option {
	return func(e *Engine) {
		e.exactCounter = counter
	}
}

// New creates an Engine. A nil config uses DefaultConfig.
func New(config *Config, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		logger:   noopLogger{},
		sessions: make(map[string]*sessionCache),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.calibration == nil && !cfg.DisableCalibration {
		e.calibration = tokens.NewCalibrationStore()
	}

	var estOpts []tokens.EstimatorOption
	if e.exactCounter != nil {
		estOpts = append(estOpts, tokens.WithExactCounter(e.exactCounter))
	}
	calibration := e.calibration
	if cfg.DisableCalibration {
		calibration = nil
	}
	e.estimator = tokens.NewEstimator(calibration, estOpts...)

	e.aligner = boundary.New(cfg.Alignment, func(text string) int {
		return e.estimator.Estimate(text, cfg.Model)
	})
	e.detector = breakpoint.NewDetector()

	return e, nil
}

// Estimator returns the engine's token estimator.
func (e *Engine) Estimator() *tokens.Estimator {
	return e.estimator
}

// estimate sizes text under the configured model.
func (e *Engine) estimate(text string) int {
	return e.estimator.Estimate(text, e.config.Model)
}

// Result is the assembled compressed context for one turn.
//
// EntityMapText changes least often and belongs earliest in the eventual
// prompt, where it benefits most from prefix caching. SummaryText
// concatenates milestones then layers in chronological order.
// RecentMessages is the untouched message suffix past the processed
// bookmark.
type Result struct {
	SummaryText    string
	EntityMapText  string
	RecentMessages []Message

	// Compressed reports whether this call created at least one layer.
	Compressed bool

	// NeedsCompression reports that unprocessed history exceeds the soft
	// threshold but was not folded this turn, either because no safe
	// breakpoint exists yet or because the summarization call failed.
	// Callers fall back to sending the full history for this turn.
	NeedsCompression bool

	Stats SessionStats
}

// Compress folds the unprocessed message suffix into summary layers when a
// trigger fires, then returns the assembled context. messages must be the
// session's full, current message list; only the suffix past the processed
// bookmark is ever summarized.
//
// On summarization failure no state is advanced: the returned Result holds
// the prior cached summary with NeedsCompression set, alongside an error
// wrapping ErrSummarizationFailed.
func (e *Engine) Compress(ctx context.Context, sessionID string, messages []Message) (*Result, error) {
	e.metrics.totalRequests.Add(1)

	e.mu.Lock()
	session := e.joinAsyncLocked(sessionID)

	trigger := e.evaluateTrigger(session, messages)
	if trigger == triggerNone {
		result := e.assembleLocked(session, messages, false)
		e.mu.Unlock()
		return result, nil
	}

	claimJobLocked(session)
	result, err := e.compressLocked(ctx, session, messages, trigger == triggerHard)
	e.mu.Unlock()
	return result, err
}

// claimJobLocked marks a compression job in flight for the session. The
// claim covers the windows where summarizeUnlocked drops the engine lock;
// concurrent callers join on the done channel instead of racing the
// bookmark. One job per session at a time.
func claimJobLocked(session *sessionCache) {
	session.asyncInProgress = true
	session.asyncDone = make(chan struct{})
}

// releaseJobLocked clears the claim and wakes all waiters.
func releaseJobLocked(session *sessionCache) {
	session.asyncInProgress = false
	close(session.asyncDone)
	session.asyncDone = nil
}

// compressLocked runs one compression pass. Called with the engine lock
// held and the session's job claim taken; the claim is released on return.
// The lock is dropped around summarization calls and reacquired, so the
// caller must not rely on state observed before calling. Returns with the
// lock held.
func (e *Engine) compressLocked(ctx context.Context, session *sessionCache, messages []Message, hard bool) (*Result, error) {
	defer releaseJobLocked(session)

	if hard {
		e.metrics.hardLimitTriggers.Add(1)
	}

	boundaryIdx := e.findCompressionBoundary(session, messages, hard)
	if boundaryIdx <= session.processedMessageCount {
		// Soft trigger with no safe breakpoint yet. Report the need and
		// let raw history ride along until one appears.
		session.pendingCompression = true
		return e.assembleLocked(session, messages, true), nil
	}

	if e.summarizer == nil {
		session.pendingCompression = true
		return e.assembleLocked(session, messages, true),
			NewEngineError("compress", ErrNoSummarizer).WithSession(session.id)
	}

	start := session.processedMessageCount
	rng := MessageRange{Start: start, End: boundaryIdx}
	rangeText := e.formatRangeText(messages[start:boundaryIdx])

	kind := InstructionLayer
	maxTokens := e.config.SummaryMaxTokens
	if e.pendingTokens(session, messages[:boundaryIdx]) > e.config.MiddleLayerTokenLimit {
		kind = InstructionLayerCompact
		maxTokens = e.config.SummaryMaxTokensCompact
	}

	raw, stale, err := e.summarizeUnlocked(ctx, session, SummarizeRequest{
		Text:         rangeText,
		Kind:         kind,
		Instructions: instructionsFor(kind),
		MaxTokens:    maxTokens,
	})
	if stale {
		// Session was cleared mid-call; the fresh state wins. A cleared
		// session is not recreated here, the throwaway cache only shapes
		// the result.
		fresh, ok := e.sessions[session.id]
		if !ok {
			fresh = newSessionCache(session.id)
		}
		return e.assembleLocked(fresh, messages, false), nil
	}
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("empty summarizer response")
	}
	if err != nil {
		session.pendingCompression = true
		e.logger.Warn("summarization failed, falling back to uncompressed context",
			"session_id", session.id, "error", err)
		return e.assembleLocked(session, messages, true),
			NewEngineError("compress", ErrSummarizationFailed).
				WithSession(session.id).
				WithContext("cause", err.Error())
	}

	layer := e.buildLayer(session, rng, false, parseSummaryPayload(raw))
	session.appendLayer(layer)
	session.processedMessageCount = boundaryIdx
	session.pendingCompression = false
	e.metrics.layerCreations.Add(1)
	e.logger.Debug("layer created",
		"session_id", session.id,
		"range_start", rng.Start, "range_end", rng.End,
		"tokens", layer.TokenCount)

	if len(session.layerIdx) >= e.config.MilestoneThreshold {
		e.mergeMilestoneLocked(ctx, session)
	}
	if len(session.milestoneIdx) >= e.config.MilestoneDistillThreshold {
		e.distillMilestonesLocked(ctx, session)
	}

	result := e.assembleLocked(session, messages, false)
	result.Compressed = true
	return result, nil
}

// buildLayer aligns, frames and records a new layer from a parsed
// summarization payload. Caller holds the engine lock.
func (e *Engine) buildLayer(session *sessionCache, rng MessageRange, isMilestone bool, payload summaryPayload) SummaryLayer {
	session.layerSeq++
	seq := session.layerSeq

	block := wrapLayerText(seq, rng, isMilestone, payload.summary)
	block = e.aligner.Align(block)

	names := make([]string, 0, len(payload.entities))
	for _, entity := range payload.entities {
		names = append(names, entity.Name)
	}
	session.mergeEntities(payload.entities, seq)

	return SummaryLayer{
		ID:          uuid.New(),
		SummaryText: block,
		TokenCount:  e.estimate(block),
		Range:       rng,
		CreatedAt:   time.Now(),
		IsMilestone: isMilestone,
		Entities:    names,
		Decisions:   payload.decisions,
	}
}

// mergeMilestoneLocked folds the oldest layers into one milestone, keeping
// the two newest layers unmerged. A failed merge leaves the layers intact.
func (e *Engine) mergeMilestoneLocked(ctx context.Context, session *sessionCache) {
	mergeCount := len(session.layerIdx) - 2
	if mergeCount < 2 {
		return
	}

	layers := session.layers()[:mergeCount]
	rng := MessageRange{Start: layers[0].Range.Start, End: layers[mergeCount-1].Range.End}

	var texts []string
	for _, layer := range layers {
		texts = append(texts, layer.SummaryText)
	}

	raw, stale, err := e.summarizeUnlocked(ctx, session, SummarizeRequest{
		Text:         strings.Join(texts, "\n\n"),
		Kind:         InstructionMilestone,
		Instructions: instructionsFor(InstructionMilestone),
		MaxTokens:    e.config.MilestoneMaxTokens,
	})
	if stale {
		return
	}
	if err != nil || strings.TrimSpace(raw) == "" {
		e.logger.Warn("milestone merge failed, keeping layers",
			"session_id", session.id, "error", err)
		return
	}

	milestone := e.buildLayer(session, rng, true, parseSummaryPayload(raw))
	session.mergeOldestLayers(mergeCount, milestone)
	e.metrics.milestoneCreations.Add(1)
	e.logger.Info("milestone created",
		"session_id", session.id,
		"merged_layers", mergeCount,
		"range_start", rng.Start, "range_end", rng.End)
}

// distillMilestonesLocked re-summarizes all but the newest milestone into
// one compacted milestone. A failed distillation leaves the milestones
// intact.
func (e *Engine) distillMilestonesLocked(ctx context.Context, session *sessionCache) {
	milestones := session.milestones()
	if len(milestones) < 2 {
		return
	}
	old := milestones[:len(milestones)-1]
	rng := MessageRange{Start: old[0].Range.Start, End: old[len(old)-1].Range.End}

	var texts []string
	for _, milestone := range old {
		texts = append(texts, milestone.SummaryText)
	}

	raw, stale, err := e.summarizeUnlocked(ctx, session, SummarizeRequest{
		Text:         strings.Join(texts, "\n\n"),
		Kind:         InstructionDistill,
		Instructions: instructionsFor(InstructionDistill),
		MaxTokens:    e.config.MilestoneMaxTokens,
	})
	if stale {
		return
	}
	if err != nil || strings.TrimSpace(raw) == "" {
		e.logger.Warn("milestone distillation failed, keeping milestones",
			"session_id", session.id, "error", err)
		return
	}

	distilled := e.buildLayer(session, rng, true, parseSummaryPayload(raw))
	session.distillMilestones(distilled)
	e.metrics.milestoneDistillations.Add(1)
	e.logger.Info("milestones distilled",
		"session_id", session.id, "distilled", len(old))
}

// summarizeUnlocked releases the engine lock for the provider round trip
// and reacquires it. stale is true when the session was cleared while the
// call was in flight; the result must then be discarded.
func (e *Engine) summarizeUnlocked(ctx context.Context, session *sessionCache, req SummarizeRequest) (raw string, stale bool, err error) {
	gen := session.generation
	id := session.id

	e.mu.Unlock()
	raw, err = e.summarizer.Summarize(ctx, req)
	e.mu.Lock()

	current, ok := e.sessions[id]
	if !ok || current != session || session.generation != gen {
		return "", true, nil
	}
	return raw, false, err
}

// assembleLocked builds the caller-facing result from current session
// state. Caller holds the engine lock.
func (e *Engine) assembleLocked(session *sessionCache, messages []Message, needsCompression bool) *Result {
	start := session.processedMessageCount
	if start > len(messages) {
		start = len(messages)
	}
	recent := make([]Message, len(messages)-start)
	copy(recent, messages[start:])

	return &Result{
		SummaryText:      session.summaryText(),
		EntityMapText:    session.entityMapText(),
		RecentMessages:   recent,
		NeedsCompression: needsCompression,
		Stats:            session.stats(),
	}
}

// SummaryResult is GetOrCreateSummary's narrower response.
type SummaryResult struct {
	// Summary is the entity map followed by the layered summary text.
	Summary string

	// RecentMessages is at most keepRecentCount trailing messages.
	RecentMessages []Message

	// NeedsCompression reports that history beyond the returned tail was
	// not folded into Summary this turn.
	NeedsCompression bool
}

// GetOrCreateSummary is the shim for callers that only want a summary plus
// the last N messages. keepRecentCount <= 0 uses the configured default.
func (e *Engine) GetOrCreateSummary(ctx context.Context, sessionID string, messages []Message, keepRecentCount int) (*SummaryResult, error) {
	if keepRecentCount <= 0 {
		keepRecentCount = e.config.KeepRecentCount
	}

	result, err := e.Compress(ctx, sessionID, messages)
	if result == nil {
		return nil, err
	}

	recent := result.RecentMessages
	needs := result.NeedsCompression
	if len(recent) > keepRecentCount {
		recent = recent[len(recent)-keepRecentCount:]
		needs = true
	}

	summary := result.SummaryText
	if result.EntityMapText != "" {
		if summary != "" {
			summary = result.EntityMapText + "\n\n" + summary
		} else {
			summary = result.EntityMapText
		}
	}

	return &SummaryResult{
		Summary:          summary,
		RecentMessages:   recent,
		NeedsCompression: needs,
	}, err
}

// CalibrateTokenOffset records provider cache-hit feedback for a session.
// reportedCacheHitTokens is nil when the provider reported no cache usage;
// a streak of such misses forces an offset recalculation instead of
// leaving a stale offset in place.
func (e *Engine) CalibrateTokenOffset(sessionID string, reportedCacheHitTokens *int, expectedCacheTokens int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return
	}

	if reportedCacheHitTokens == nil {
		session.consecutiveCacheMisses++
		e.metrics.cacheMisses.Add(1)
		if session.consecutiveCacheMisses == e.config.CalibrationMissThreshold {
			session.calibrationOffset = 0
			e.metrics.calibrationAdjustments.Add(1)
			e.logger.Warn("cache miss streak, resetting token offset",
				"session_id", sessionID,
				"misses", session.consecutiveCacheMisses)
		}
		return
	}

	reported := *reportedCacheHitTokens
	e.metrics.cacheHits.Add(1)
	session.consecutiveCacheMisses = 0
	session.calibrationOffset = float64(reported - expectedCacheTokens)

	if reported > 0 && expectedCacheTokens > 0 {
		e.estimator.RecordSample(e.config.Model, expectedCacheTokens, reported)
	}
}

// ClearSession discards a session's compression state. Safe to call while
// an async job is in flight; the in-flight result is discarded instead of
// committing into recycled state.
func (e *Engine) ClearSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if session, ok := e.sessions[sessionID]; ok {
		session.generation++
		delete(e.sessions, sessionID)
	}
}

// ClearAll discards all session state.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, session := range e.sessions {
		session.generation++
		delete(e.sessions, id)
	}
}

// SessionStats returns one session's compression stats.
func (e *Engine) SessionStats(sessionID string) (SessionStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return SessionStats{}, NewEngineError("stats", ErrSessionNotFound).WithSession(sessionID)
	}
	return session.stats(), nil
}

// SessionIDs returns the ids of all live sessions, sorted.
func (e *Engine) SessionIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionSummary returns a session's current summary and entity map text
// without triggering compression. Read-only introspection surface.
func (e *Engine) SessionSummary(sessionID string) (summaryText, entityMapText string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return "", "", NewEngineError("summary", ErrSessionNotFound).WithSession(sessionID)
	}
	return session.summaryText(), session.entityMapText(), nil
}

// SessionLayers returns copies of a session's active layers, milestones
// first, in chronological order.
func (e *Engine) SessionLayers(sessionID string) ([]SummaryLayer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return nil, NewEngineError("layers", ErrSessionNotFound).WithSession(sessionID)
	}
	layers := session.milestones()
	return append(layers, session.layers()...), nil
}

// Metrics returns a snapshot of the engine's global counters.
func (e *Engine) Metrics() Metrics {
	return e.metrics.snapshot()
}

// getSessionLocked returns the session cache, creating it lazily. Caller
// holds the engine lock.
func (e *Engine) getSessionLocked(sessionID string) *sessionCache {
	session, ok := e.sessions[sessionID]
	if !ok {
		session = newSessionCache(sessionID)
		e.sessions[sessionID] = session
	}
	return session
}

