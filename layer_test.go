package contextfold

import (
	"strings"
	"testing"
)

func TestWrapLayerTextFraming(t *testing.T) {
	block := wrapLayerText(3, MessageRange{Start: 12, End: 40}, false, "Budget agreed at 4000 tokens.")

	if !strings.HasPrefix(block, "### Context layer 3\n") {
		t.Errorf("missing layer header: %q", block)
	}
	if !strings.Contains(block, "<!-- range:12-40 -->") {
		t.Errorf("missing range marker: %q", block)
	}
	if !strings.HasSuffix(block, layerEndSentinel) {
		t.Errorf("missing end sentinel: %q", block)
	}

	milestone := wrapLayerText(7, MessageRange{Start: 0, End: 120}, true, "Stage one complete.")
	if !strings.HasPrefix(milestone, "### Milestone 7\n") {
		t.Errorf("missing milestone header: %q", milestone)
	}
}

func TestParseLayerRange(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   MessageRange
		wantOK bool
	}{
		{
			name:   "round trip",
			text:   wrapLayerText(1, MessageRange{Start: 5, End: 17}, false, "body"),
			want:   MessageRange{Start: 5, End: 17},
			wantOK: true,
		},
		{
			name:   "no marker",
			text:   "### Context layer 1\nbody\n<!-- END -->",
			wantOK: false,
		},
		{
			name:   "malformed marker",
			text:   "<!-- range:five-ten -->",
			wantOK: false,
		},
		{
			name:   "unterminated marker",
			text:   "<!-- range:5-17",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLayerRange(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("parseLayerRange() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseLayerRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRenderEntityMapStableOrder(t *testing.T) {
	entities := map[string]*EntityInfo{
		"zoe":    {Name: "zoe", Kind: EntityPerson, Value: "reviewer"},
		"budget": {Name: "budget", Kind: EntityNumber, Value: "4000"},
		"friday": {Name: "friday", Kind: EntityDate, Value: "deadline"},
	}

	first := renderEntityMap(entities)
	second := renderEntityMap(entities)
	if first != second {
		t.Error("renderEntityMap is not deterministic")
	}

	want := "### Known entities\n" +
		"- budget (number): 4000\n" +
		"- friday (date): deadline\n" +
		"- zoe (person): reviewer\n"
	if first != want {
		t.Errorf("renderEntityMap() = %q, want %q", first, want)
	}

	if renderEntityMap(nil) != "" {
		t.Error("empty entity map should render as empty string")
	}
}

func TestNormalizeEntityKind(t *testing.T) {
	tests := []struct {
		in   string
		want EntityKind
	}{
		{"person", EntityPerson},
		{"Person", EntityPerson},
		{" date ", EntityDate},
		{"number", EntityNumber},
		{"preference", EntityPreference},
		{"gibberish", EntityPreference},
		{"", EntityPreference},
	}
	for _, tt := range tests {
		if got := normalizeEntityKind(tt.in); got != tt.want {
			t.Errorf("normalizeEntityKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionCacheMergeSwapsIndexOnly(t *testing.T) {
	session := newSessionCache("s1")
	for i := 0; i < 5; i++ {
		session.appendLayer(SummaryLayer{
			SummaryText: wrapLayerText(i+1, MessageRange{Start: i * 10, End: (i + 1) * 10}, false, "body"),
			Range:       MessageRange{Start: i * 10, End: (i + 1) * 10},
			TokenCount:  10,
		})
	}

	arenaBefore := len(session.arena)
	merged := session.layers()[:3]

	session.mergeOldestLayers(3, SummaryLayer{
		SummaryText: wrapLayerText(6, MessageRange{Start: 0, End: 30}, true, "milestone"),
		Range:       MessageRange{Start: 0, End: 30},
		IsMilestone: true,
		TokenCount:  5,
	})

	if len(session.layerIdx) != 2 {
		t.Errorf("active layers = %d, want 2", len(session.layerIdx))
	}
	if len(session.milestoneIdx) != 1 {
		t.Errorf("active milestones = %d, want 1", len(session.milestoneIdx))
	}
	if len(session.arena) != arenaBefore+1 {
		t.Errorf("arena length = %d, want %d", len(session.arena), arenaBefore+1)
	}

	// Merged records stay intact in the arena.
	for i, layer := range merged {
		if session.arena[i].SummaryText != layer.SummaryText {
			t.Errorf("arena record %d mutated by merge", i)
		}
	}

	if got := session.totalTokens(); got != 2*10+5 {
		t.Errorf("totalTokens() = %d, want 25", got)
	}
}

func TestSessionCacheEntityMerge(t *testing.T) {
	session := newSessionCache("s1")

	session.mergeEntities([]EntityInfo{
		{Name: "alice", Kind: EntityPerson, Value: "lead"},
	}, 1)
	session.mergeEntities([]EntityInfo{
		{Name: "alice", Kind: EntityPerson, Value: "on leave"},
		{Name: "budget", Kind: EntityNumber, Value: "4000"},
	}, 2)

	if len(session.entities) != 2 {
		t.Fatalf("entity count = %d, want 2", len(session.entities))
	}

	alice := session.entities["alice"]
	if alice.Value != "on leave" {
		t.Errorf("alice value = %q, want updated in place", alice.Value)
	}
	if alice.FirstSeenLayer != 1 || alice.LastUpdatedLayer != 2 {
		t.Errorf("alice layers = (%d, %d), want (1, 2)", alice.FirstSeenLayer, alice.LastUpdatedLayer)
	}
}
