// Package contextfold keeps long chat sessions inside a model's context
// window while maximizing prefix-cache reuse on providers that charge and
// accelerate on cached token prefixes.
//
// The engine consumes the session's full message list and folds the older
// portion into layered summaries: an append-only list of immutable summary
// layers, periodically merged into higher-level milestones and distilled
// again as milestones accumulate. A session-wide entity map tracks named
// facts (people, dates, numbers, preferences) across layers. Summary
// blocks are padded to fixed token boundaries so edits inside one layer do
// not shift the byte offsets of the already-cached layers after it.
//
// # Usage
//
// Create an Engine with a summarization call and compress on each turn:
//
//	engine, err := contextfold.New(nil,
//	    contextfold.WithSummarizer(summarizer),
//	    contextfold.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := engine.Compress(ctx, sessionID, messages)
//	if err != nil {
//	    // Compression failed; result still carries the prior summary
//	    // and the full unprocessed tail as a fallback.
//	}
//	prompt := assemble(result.EntityMapText, result.SummaryText, result.RecentMessages)
//
// After each completed provider call, feed cache-hit feedback so token
// estimates self-correct:
//
//	engine.CalibrateTokenOffset(sessionID, reportedCacheHitTokens, expectedCacheTokens)
//
// Background compression overlaps summarization with user think time:
//
//	engine.TriggerAsyncCompression(ctx, sessionID, messages)
//
// # Triggers
//
// Compression fires on two thresholds over the unprocessed message suffix:
// a soft threshold that also requires a semantic breakpoint (a safe place
// to cut, never mid-code-block or mid-tool-call), and a hard threshold
// that compresses regardless, pulling the cut back only far enough to keep
// question/answer/tool-call chains whole.
package contextfold
