package contextfold

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// Snapshot is a serializable copy of one session's compression state.
// Persisting and reloading it lets a session skip re-summarizing history
// it already paid for in a previous process lifetime. Layer immutability
// is load-bearing for cache correctness, so a snapshot must round-trip
// every field exactly.
type Snapshot struct {
	SessionID             string         `json:"session_id"`
	Layers                []SummaryLayer `json:"layers"`
	Milestones            []SummaryLayer `json:"milestones"`
	Entities              []EntityInfo   `json:"entities,omitempty"`
	ProcessedMessageCount int            `json:"processed_message_count"`
	CreatedAt             time.Time      `json:"created_at"`
}

// Snapshot exports a session's current compression state.
func (e *Engine) Snapshot(sessionID string) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return nil, NewEngineError("snapshot", ErrSessionNotFound).WithSession(sessionID)
	}

	entities := make([]EntityInfo, 0, len(session.entities))
	for _, info := range session.entities {
		entities = append(entities, *info)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})

	return &Snapshot{
		SessionID:             sessionID,
		Layers:                session.layers(),
		Milestones:            session.milestones(),
		Entities:              entities,
		ProcessedMessageCount: session.processedMessageCount,
		CreatedAt:             session.createdAt,
	}, nil
}

// Prewarm injects a previously exported snapshot into a cold session.
// Invalid snapshots are rejected with ErrInvalidPrewarm and the session
// stays cold; a session that already has compression state is rejected
// with ErrSessionNotCold.
func (e *Engine) Prewarm(snapshot *Snapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return NewEngineError("prewarm", ErrInvalidPrewarm)
	}
	if err := validateSnapshot(snapshot); err != nil {
		e.logger.Warn("prewarm rejected, session starts cold",
			"session_id", snapshot.SessionID, "error", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.sessions[snapshot.SessionID]; ok && !existing.cold() {
		return NewEngineError("prewarm", ErrSessionNotCold).WithSession(snapshot.SessionID)
	}

	session := newSessionCache(snapshot.SessionID)
	for _, layer := range snapshot.Milestones {
		layer.IsMilestone = true
		session.appendLayer(e.reviveLayer(layer))
	}
	for _, layer := range snapshot.Layers {
		layer.IsMilestone = false
		session.appendLayer(e.reviveLayer(layer))
	}
	for _, entity := range snapshot.Entities {
		info := entity
		session.entities[entity.Name] = &info
	}
	session.processedMessageCount = snapshot.ProcessedMessageCount
	session.layerSeq = len(snapshot.Milestones) + len(snapshot.Layers)
	if !snapshot.CreatedAt.IsZero() {
		session.createdAt = snapshot.CreatedAt
	}

	e.sessions[snapshot.SessionID] = session
	e.logger.Info("session prewarmed",
		"session_id", snapshot.SessionID,
		"layers", len(snapshot.Layers),
		"milestones", len(snapshot.Milestones),
		"processed", snapshot.ProcessedMessageCount)
	return nil
}

// PrewarmJSON validates and injects a JSON-encoded snapshot, typically one
// loaded from the caller's store.
func (e *Engine) PrewarmJSON(payload []byte) error {
	if !gjson.ValidBytes(payload) {
		return NewEngineError("prewarm", ErrInvalidPrewarm).
			WithContext("reason", "not valid json")
	}
	doc := gjson.ParseBytes(payload)
	if !doc.Get("session_id").Exists() || !doc.Get("processed_message_count").Exists() {
		return NewEngineError("prewarm", ErrInvalidPrewarm).
			WithContext("reason", "missing required fields")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return NewEngineError("prewarm", ErrInvalidPrewarm).
			WithContext("reason", err.Error())
	}
	return e.Prewarm(&snapshot)
}

// reviveLayer restores derived fields a serialized layer may be missing.
func (e *Engine) reviveLayer(layer SummaryLayer) SummaryLayer {
	if layer.TokenCount <= 0 {
		layer.TokenCount = e.estimate(layer.SummaryText)
	}
	if layer.CreatedAt.IsZero() {
		layer.CreatedAt = time.Now()
	}
	return layer
}

// validateSnapshot checks the structural invariants a snapshot must hold:
// non-empty layer text, well-formed ranges in ascending non-overlapping
// order within each list, no range past the processed bookmark, and an
// embedded range marker (when present) agreeing with the declared range.
func validateSnapshot(snapshot *Snapshot) error {
	if snapshot.ProcessedMessageCount < 0 {
		return NewEngineError("prewarm", ErrInvalidPrewarm).
			WithSession(snapshot.SessionID).
			WithContext("reason", "negative processed count")
	}

	for _, list := range [][]SummaryLayer{snapshot.Milestones, snapshot.Layers} {
		prevEnd := 0
		for _, layer := range list {
			if layer.SummaryText == "" {
				return NewEngineError("prewarm", ErrInvalidPrewarm).
					WithSession(snapshot.SessionID).
					WithContext("reason", "empty layer text")
			}
			if layer.Range.Start < 0 || layer.Range.End <= layer.Range.Start {
				return NewEngineError("prewarm", ErrInvalidPrewarm).
					WithSession(snapshot.SessionID).
					WithContext("reason", "malformed layer range")
			}
			if layer.Range.Start < prevEnd {
				return NewEngineError("prewarm", ErrInvalidPrewarm).
					WithSession(snapshot.SessionID).
					WithContext("reason", "overlapping layer ranges")
			}
			if layer.Range.End > snapshot.ProcessedMessageCount {
				return NewEngineError("prewarm", ErrInvalidPrewarm).
					WithSession(snapshot.SessionID).
					WithContext("reason", "layer range past processed count")
			}
			if marked, ok := parseLayerRange(layer.SummaryText); ok && marked != layer.Range {
				return NewEngineError("prewarm", ErrInvalidPrewarm).
					WithSession(snapshot.SessionID).
					WithContext("reason", "range marker disagrees with layer range")
			}
			prevEnd = layer.Range.End
		}
	}
	return nil
}
