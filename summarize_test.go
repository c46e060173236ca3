package contextfold

import (
	"strings"
	"testing"
)

func TestParseSummaryPayload(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantSummary   string
		wantEntities  int
		wantDecisions int
	}{
		{
			name: "well formed",
			raw: "Alice owns the rollout.\n```json\n" +
				`{"entities":[{"name":"Alice","kind":"person","value":"owner"},{"name":"deadline","kind":"date","value":"March 3"}],"decisions":["ship behind a flag"]}` +
				"\n```",
			wantSummary:   "Alice owns the rollout.",
			wantEntities:  2,
			wantDecisions: 1,
		},
		{
			name:        "no block",
			raw:         "Just prose, nothing extracted.",
			wantSummary: "Just prose, nothing extracted.",
		},
		{
			name:        "unterminated block",
			raw:         "Prose first.\n```json\n{\"entities\":[]}",
			wantSummary: "Prose first.\n```json\n{\"entities\":[]}",
		},
		{
			name:        "invalid json kept as prose",
			raw:         "Prose first.\n```json\n{not json}\n```",
			wantSummary: "Prose first.\n```json\n{not json}\n```",
		},
		{
			name: "empty arrays",
			raw:  "Settled.\n```json\n{\"entities\":[],\"decisions\":[]}\n```",

			wantSummary: "Settled.",
		},
		{
			name: "nameless entity skipped",
			raw: "Partial extraction.\n```json\n" +
				`{"entities":[{"name":"","value":"x"},{"name":"real","kind":"number","value":"7"}]}` +
				"\n```",
			wantSummary:  "Partial extraction.",
			wantEntities: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSummaryPayload(tt.raw)
			if got.summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", got.summary, tt.wantSummary)
			}
			if len(got.entities) != tt.wantEntities {
				t.Errorf("entities = %d, want %d", len(got.entities), tt.wantEntities)
			}
			if len(got.decisions) != tt.wantDecisions {
				t.Errorf("decisions = %d, want %d", len(got.decisions), tt.wantDecisions)
			}
		})
	}
}

func TestFormatRangeTextFiltering(t *testing.T) {
	engine := newTestEngine(t, nil, &fakeSummarizer{})

	messages := []Message{
		{Role: RoleUser, Content: "please rename the config file to settings.yaml in the deploy repo"},
		{Role: RoleAssistant, Content: "renamed the file and updated the three references I found in CI"},
		{Role: RoleUser, Content: "okay, thanks!"},
		{Role: RoleUser, Content: "also bump the version to 2.4.0 before tagging the release"},
		{Role: RoleUser, Content: "secret token is attached here", Pinned: true},
		{Role: RoleAssistant, Content: "   "},
	}

	text := engine.formatRangeText(messages)

	if !strings.Contains(text, "user: please rename the config file") {
		t.Errorf("missing user message in %q", text)
	}
	if !strings.Contains(text, "assistant: renamed the file") {
		t.Errorf("missing assistant message in %q", text)
	}
	if strings.Contains(text, "okay, thanks!") {
		t.Error("low-priority acknowledgement was not filtered")
	}
	if strings.Contains(text, "secret token") {
		t.Error("pinned message leaked into summarizer input")
	}
	if strings.Count(text, "\n") != 3 {
		t.Errorf("expected 3 rendered lines, got %q", text)
	}
}

func TestInstructionsForEveryKind(t *testing.T) {
	kinds := []InstructionKind{
		InstructionLayer,
		InstructionLayerCompact,
		InstructionMilestone,
		InstructionDistill,
	}
	for _, kind := range kinds {
		instructions := instructionsFor(kind)
		if instructions == "" {
			t.Errorf("instructionsFor(%q) is empty", kind)
		}
		if !strings.Contains(instructions, "```json") {
			t.Errorf("instructionsFor(%q) missing the machine block request", kind)
		}
	}
}
