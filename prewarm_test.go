package contextfold

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func warmSnapshot(t *testing.T, engine *Engine, sessionID string) *Snapshot {
	t.Helper()

	messages := fillerExchange(18, 40)
	messages = append(messages, Message{Role: RoleUser, Content: "Got it."})
	if _, err := engine.Compress(context.Background(), sessionID, messages); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	snapshot, err := engine.Snapshot(sessionID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snapshot
}

func TestSnapshotRoundTrip(t *testing.T) {
	summarizer := &fakeSummarizer{
		response: "Alice leads the migration project.\n```json\n{\"entities\":[{\"name\":\"Alice\",\"kind\":\"person\",\"value\":\"project lead\"}],\"decisions\":[]}\n```",
	}
	engine := newTestEngine(t, nil, summarizer)
	snapshot := warmSnapshot(t, engine, "s1")

	summaryBefore, entitiesBefore, err := engine.SessionSummary("s1")
	if err != nil {
		t.Fatalf("SessionSummary() error = %v", err)
	}

	// Reload into a fresh engine, as after a process restart.
	reloaded := newTestEngine(t, nil, summarizer)
	if err := reloaded.Prewarm(snapshot); err != nil {
		t.Fatalf("Prewarm() error = %v", err)
	}

	summaryAfter, entitiesAfter, err := reloaded.SessionSummary("s1")
	if err != nil {
		t.Fatalf("SessionSummary() after prewarm error = %v", err)
	}
	if summaryAfter != summaryBefore {
		t.Error("summary text did not round-trip byte-identically")
	}
	if entitiesAfter != entitiesBefore {
		t.Error("entity map did not round-trip byte-identically")
	}

	stats, err := reloaded.SessionStats("s1")
	if err != nil {
		t.Fatalf("SessionStats() error = %v", err)
	}
	if stats.ProcessedMessages != snapshot.ProcessedMessageCount {
		t.Errorf("ProcessedMessages = %d, want %d", stats.ProcessedMessages, snapshot.ProcessedMessageCount)
	}
	if stats.LayerCount != len(snapshot.Layers) {
		t.Errorf("LayerCount = %d, want %d", stats.LayerCount, len(snapshot.Layers))
	}
}

func TestPrewarmJSONRoundTrip(t *testing.T) {
	summarizer := &fakeSummarizer{}
	engine := newTestEngine(t, nil, summarizer)
	snapshot := warmSnapshot(t, engine, "s1")

	payload, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	reloaded := newTestEngine(t, nil, summarizer)
	if err := reloaded.PrewarmJSON(payload); err != nil {
		t.Fatalf("PrewarmJSON() error = %v", err)
	}

	stats, err := reloaded.SessionStats("s1")
	if err != nil {
		t.Fatalf("SessionStats() error = %v", err)
	}
	if stats.LayerCount != len(snapshot.Layers) {
		t.Errorf("LayerCount = %d, want %d", stats.LayerCount, len(snapshot.Layers))
	}
}

func TestPrewarmRejectsWarmSession(t *testing.T) {
	summarizer := &fakeSummarizer{}
	engine := newTestEngine(t, nil, summarizer)
	snapshot := warmSnapshot(t, engine, "s1")

	if err := engine.Prewarm(snapshot); !errors.Is(err, ErrSessionNotCold) {
		t.Errorf("Prewarm() error = %v, want ErrSessionNotCold", err)
	}
}

func TestPrewarmValidation(t *testing.T) {
	layer := func(start, end int) SummaryLayer {
		return SummaryLayer{
			SummaryText: "### Context layer 1\nsummary\n<!-- END -->",
			Range:       MessageRange{Start: start, End: end},
		}
	}

	tests := []struct {
		name     string
		snapshot *Snapshot
	}{
		{
			name:     "nil snapshot",
			snapshot: nil,
		},
		{
			name:     "missing session id",
			snapshot: &Snapshot{ProcessedMessageCount: 5, Layers: []SummaryLayer{layer(0, 5)}},
		},
		{
			name: "negative processed count",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: -1,
			},
		},
		{
			name: "empty layer text",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: 5,
				Layers:                []SummaryLayer{{Range: MessageRange{Start: 0, End: 5}}},
			},
		},
		{
			name: "inverted range",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: 5,
				Layers:                []SummaryLayer{layer(5, 2)},
			},
		},
		{
			name: "overlapping ranges",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: 10,
				Layers:                []SummaryLayer{layer(0, 6), layer(4, 10)},
			},
		},
		{
			name: "range past processed count",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: 5,
				Layers:                []SummaryLayer{layer(0, 8)},
			},
		},
		{
			name: "marker disagrees with range",
			snapshot: &Snapshot{
				SessionID:             "s1",
				ProcessedMessageCount: 5,
				Layers: []SummaryLayer{{
					SummaryText: "### Context layer 1\n<!-- range:0-3 -->\nsummary\n<!-- END -->",
					Range:       MessageRange{Start: 0, End: 5},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, nil, &fakeSummarizer{})
			if err := engine.Prewarm(tt.snapshot); !errors.Is(err, ErrInvalidPrewarm) {
				t.Errorf("Prewarm() error = %v, want ErrInvalidPrewarm", err)
			}
			// The session stays cold.
			if _, err := engine.SessionStats("s1"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("session was created from invalid prewarm: %v", err)
			}
		})
	}
}

func TestPrewarmJSONRejectsGarbage(t *testing.T) {
	engine := newTestEngine(t, nil, &fakeSummarizer{})

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "{{{"},
		{"missing fields", `{"layers":[]}`},
		{"wrong shape", `{"session_id":"s1","processed_message_count":"a lot","layers":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.PrewarmJSON([]byte(tt.payload)); !errors.Is(err, ErrInvalidPrewarm) {
				t.Errorf("PrewarmJSON(%q) error = %v, want ErrInvalidPrewarm", tt.payload, err)
			}
		})
	}
}
