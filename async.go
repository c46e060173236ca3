package contextfold

import "context"

// TriggerAsyncCompression starts background compression for a session.
// It is a no-op when a job is already in flight for the session or when no
// trigger fires. Intended to be kicked off right after a user turn
// completes, overlapping with user think time; the next synchronous
// Compress joins the job instead of racing it.
func (e *Engine) TriggerAsyncCompression(ctx context.Context, sessionID string, messages []Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session := e.getSessionLocked(sessionID)
	if session.asyncInProgress {
		return
	}

	trigger := e.evaluateTrigger(session, messages)
	if trigger == triggerNone {
		return
	}

	// Claim the job before spawning so a caller that waits right after
	// triggering observes it. The claim also keeps synchronous Compress
	// calls joined on this job instead of folding the same range.
	claimJobLocked(session)

	// Snapshot the list so the caller may keep appending to theirs.
	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)

	go func() {
		e.mu.Lock()
		if current, ok := e.sessions[sessionID]; !ok || current != session {
			// Cleared before the job started. Release so waiters wake.
			releaseJobLocked(session)
			e.mu.Unlock()
			return
		}
		_, err := e.compressLocked(ctx, session, snapshot, trigger == triggerHard)
		e.mu.Unlock()
		if err != nil {
			e.logger.Warn("background compression failed",
				"session_id", sessionID, "error", err)
		}
	}()
}

// WaitForAsyncCompression blocks until the session's in-flight compression
// job, if any, finishes. Returns immediately when nothing is running.
func (e *Engine) WaitForAsyncCompression(sessionID string) {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	if !ok || !session.asyncInProgress {
		e.mu.Unlock()
		return
	}
	done := session.asyncDone
	e.mu.Unlock()
	<-done
}

// joinAsyncLocked returns the session cache, first waiting out any
// in-flight compression job. Called and returns with the engine lock held;
// the session is looked up again after each wait since a clear may have
// replaced it.
func (e *Engine) joinAsyncLocked(sessionID string) *sessionCache {
	for {
		session := e.getSessionLocked(sessionID)
		if !session.asyncInProgress {
			return session
		}
		done := session.asyncDone
		e.mu.Unlock()
		<-done
		e.mu.Lock()
	}
}
