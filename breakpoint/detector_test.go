package breakpoint

import (
	"strings"
	"testing"
)

func TestDetectManualMarkers(t *testing.T) {
	d := NewDetector()

	tests := []string{
		"Let's stop here. #MILESTONE",
		"#BREAKPOINT",
		"work in progress #CHECKPOINT",
		"some text\n<!-- breakpoint -->",
		// Markers win even inside otherwise-blocking content.
		"```go\nfunc oops() { #MILESTONE",
	}

	for _, content := range tests {
		t.Run(content, func(t *testing.T) {
			got := d.Detect(content)
			if !got.IsBreakpoint {
				t.Errorf("Detect(%q).IsBreakpoint = false, want true", content)
			}
			if got.Kind != KindManual {
				t.Errorf("Kind = %v, want %v", got.Kind, KindManual)
			}
			if got.Confidence != 1.0 {
				t.Errorf("Confidence = %f, want 1.0", got.Confidence)
			}
		})
	}
}

func TestDetectBlockingConditions(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{
			name:    "unclosed code fence",
			content: "Here is the function:\n```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}",
			reason:  "unclosed code fence",
		},
		{
			name:    "unbalanced brackets",
			content: "call foo(bar, baz and we are done.",
			reason:  "unbalanced brackets",
		},
		{
			name:    "unbalanced quotes",
			content: `she said "wait a moment and then stopped.`,
			reason:  "unbalanced quotes",
		},
		{
			name:    "trailing comma",
			content: "I checked the first option,",
			reason:  "trailing comma or colon",
		},
		{
			name:    "trailing colon",
			content: "The steps are:",
			reason:  "trailing comma or colon",
		},
		{
			name:    "trailing ellipsis",
			content: "let me think about this...",
			reason:  "trailing ellipsis",
		},
		{
			name:    "trailing connective",
			content: "We rename the field and then",
			reason:  "trailing connective",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.content)
			if got.IsBreakpoint {
				t.Errorf("IsBreakpoint = true, want false")
			}
			if got.BlockingReason != tt.reason {
				t.Errorf("BlockingReason = %q, want %q", got.BlockingReason, tt.reason)
			}
		})
	}
}

func TestDetectNoBreakpointInsideOpenFence(t *testing.T) {
	d := NewDetector()

	// Any odd number of triple-backtick fences must block.
	contents := []string{
		"```",
		"before\n```python\nprint(1)",
		"```\ncode\n```\nmore text\n```js",
	}
	for _, content := range contents {
		if got := d.Detect(content); got.IsBreakpoint {
			t.Errorf("Detect(%q).IsBreakpoint = true inside open fence, want false", content)
		}
	}
}

func TestDetectAcknowledgements(t *testing.T) {
	d := NewDetector()

	tests := []string{
		"okay",
		"Got it!",
		"thanks.",
		"sounds good",
		"okay, thanks!",
		"好的，谢谢！",
		"收到",
		"明白了",
	}
	for _, content := range tests {
		t.Run(content, func(t *testing.T) {
			got := d.Detect(content)
			if !got.IsBreakpoint {
				t.Errorf("Detect(%q).IsBreakpoint = false, want true", content)
			}
			if got.Kind != KindAcknowledgement {
				t.Errorf("Kind = %v, want %v", got.Kind, KindAcknowledgement)
			}
		})
	}
}

func TestDetectTerminalLongReply(t *testing.T) {
	d := NewDetector()

	long := strings.Repeat("The migration plan covers every table in the schema. ", 4)
	got := d.Detect(strings.TrimSpace(long))
	if !got.IsBreakpoint {
		t.Fatalf("long terminal reply not detected as breakpoint")
	}
	if got.Kind != KindTerminal {
		t.Errorf("Kind = %v, want %v", got.Kind, KindTerminal)
	}

	short := "Fine."
	if d.Detect(short).Kind == KindTerminal {
		t.Errorf("short reply classified as terminal, want default")
	}
}

func TestDetectDefaultIsNotBreakpoint(t *testing.T) {
	d := NewDetector()

	content := "the latency went up after the deploy"
	got := d.Detect(content)
	if got.IsBreakpoint {
		t.Errorf("Detect(%q).IsBreakpoint = true, want default false", content)
	}
	if got.Kind != KindNone {
		t.Errorf("Kind = %v, want %v", got.Kind, KindNone)
	}
	if got.BlockingReason != "" {
		t.Errorf("BlockingReason = %q, want empty for plain default", got.BlockingReason)
	}
}

func TestIsLowPriority(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		content  string
		expected bool
	}{
		{"ok", true},
		{"thanks!", true},
		{"好的", true},
		{"", true},
		{"ok, but what about the index?", false},
		{"thanks — can you also update the docs", false},
		{"the budget is 4000 tokens", false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			if got := d.IsLowPriority(tt.content); got != tt.expected {
				t.Errorf("IsLowPriority(%q) = %v, want %v", tt.content, got, tt.expected)
			}
		})
	}
}

func TestFindBestBreakpoint(t *testing.T) {
	d := NewDetector()

	contents := []string{
		"let me check the config and then", // 0: blocked
		"done, the flag was missing.",      // 1: too short for terminal, not ack
		"okay, thanks!",                    // 2: breakpoint
		"next we should look at,",          // 3: blocked
		"got it",                           // 4: breakpoint
	}

	tests := []struct {
		name       string
		rangeStart int
		preferred  int
		expected   int
	}{
		{"preferred is breakpoint", 0, 2, 2},
		{"nearest below preferred", 0, 3, 2},
		{"search upward when below blocked", 3, 3, 4},
		{"clamped preferred", 0, 99, 4},
		{"none in range", 0, 0, 2}, // outward search reaches idx 2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.FindBestBreakpoint(contents, tt.rangeStart, tt.preferred)
			if got != tt.expected {
				t.Errorf("FindBestBreakpoint = %d, want %d", got, tt.expected)
			}
		})
	}

	if got := d.FindBestBreakpoint([]string{"and then", "so,"}, 0, 1); got != -1 {
		t.Errorf("FindBestBreakpoint with no valid cut = %d, want -1", got)
	}
}

func TestLastBreakpointIn(t *testing.T) {
	d := NewDetector()

	contents := []string{"okay", "next we do,", "thanks!", "and then"}
	if got := d.LastBreakpointIn(contents, 0, len(contents)); got != 2 {
		t.Errorf("LastBreakpointIn = %d, want 2", got)
	}
	if got := d.LastBreakpointIn(contents, 3, len(contents)); got != -1 {
		t.Errorf("LastBreakpointIn(tail) = %d, want -1", got)
	}
}
