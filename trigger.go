package contextfold

// triggerState classifies how urgently a session needs compression.
type triggerState int

const (
	triggerNone triggerState = iota
	triggerSoft
	triggerHard
)

// evaluateTrigger decides whether the pending (unprocessed) tail of the
// conversation has grown past the compression thresholds. The soft threshold
// schedules background compression; the hard threshold forces a synchronous
// fold before the request goes out.
func (e *Engine) evaluateTrigger(session *sessionCache, messages []Message) triggerState {
	pending := e.pendingTokens(session, messages)
	switch {
	case pending >= e.config.HardLimitThreshold:
		return triggerHard
	case pending >= e.config.CompressionThreshold:
		return triggerSoft
	default:
		return triggerNone
	}
}

// pendingTokens estimates the unprocessed suffix of the conversation. Each
// message carries a small per-message framing overhead on top of its content.
func (e *Engine) pendingTokens(session *sessionCache, messages []Message) int {
	start := session.processedMessageCount
	if start > len(messages) {
		start = len(messages)
	}
	total := 0
	for _, msg := range messages[start:] {
		total += e.estimate(msg.Content) + messageOverheadTokens
	}
	return total
}

// findCompressionBoundary picks the index (exclusive) up to which pending
// messages get folded into the next layer. The preferred cut keeps
// KeepRecentCount messages in the recent window; the actual cut lands on the
// best conversational breakpoint near it, never splits a tool call from its
// result, and never advances past a protected message.
func (e *Engine) findCompressionBoundary(session *sessionCache, messages []Message, hard bool) int {
	start := session.processedMessageCount
	if start >= len(messages) {
		return start
	}

	keep := e.config.KeepRecentCount
	if hard {
		// Under the hard limit the recent window shrinks to the minimum
		// that still keeps the conversation coherent.
		keep = 2
	}

	preferred := len(messages) - keep
	if preferred <= start {
		if !hard {
			return start
		}
		preferred = start + 1
	}

	idx := e.bestBreakpointNear(messages, start, preferred, hard)
	if idx <= start {
		return start
	}

	idx = adjustForToolPairs(messages, idx, start)

	// A protected message never moves out of the recent window.
	for i := start; i < idx; i++ {
		if messages[i].protected() {
			idx = i
			break
		}
	}

	idx = adjustForToolPairs(messages, idx, start)
	if idx < start {
		idx = start
	}
	return idx
}

// bestBreakpointNear searches outward from the preferred index for a
// message whose content ends at a conversational breakpoint, preferring
// earlier cuts. The soft path refuses to cut without one; the hard path
// falls back to the preferred index.
func (e *Engine) bestBreakpointNear(messages []Message, start, preferred int, hard bool) int {
	if preferred <= start {
		return start
	}
	if preferred > len(messages) {
		preferred = len(messages)
	}

	contents := make([]string, len(messages))
	for i, msg := range messages {
		contents[i] = msg.Content
	}

	if idx := e.detector.FindBestBreakpoint(contents, start, preferred-1); idx >= 0 {
		return idx + 1
	}
	if hard {
		return preferred
	}
	return start
}

// adjustForToolPairs walks a candidate split back until it no longer
// separates a tool call from its result. A layer that folds the call but
// not the result leaves the model staring at an orphaned tool reply.
func adjustForToolPairs(messages []Message, idx, floor int) int {
	for idx > floor && idx < len(messages) {
		if messages[idx-1].issuesToolCall() || messages[idx].isToolResult() {
			idx--
			continue
		}
		break
	}
	if idx > floor && idx == len(messages) && messages[idx-1].issuesToolCall() {
		idx--
	}
	return idx
}
