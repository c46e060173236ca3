// Package breakpoint decides whether a conversation position is a safe place
// to cut for compression, as opposed to mid-code-block, mid-sentence or
// mid-tool-call.
package breakpoint

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies why a position was accepted as a breakpoint.
type Kind string

const (
	// KindManual is an explicit marker placed by the user or the caller.
	KindManual Kind = "manual"

	// KindAcknowledgement is a short closing phrase ("okay", "thanks", "好的").
	KindAcknowledgement Kind = "acknowledgement"

	// KindTerminal is a long reply ending in terminal punctuation.
	KindTerminal Kind = "terminal"

	// KindNone means the position is not a breakpoint.
	KindNone Kind = "none"
)

// Result is the outcome of a breakpoint check.
type Result struct {
	IsBreakpoint bool
	Kind         Kind
	Confidence   float64

	// BlockingReason names the condition that forced a negative result, if any.
	BlockingReason string
}

// Manual markers. Highest confidence, honored regardless of surrounding
// content.
var manualMarkers = []string{
	"#MILESTONE",
	"#BREAKPOINT",
	"#CHECKPOINT",
	"<!-- breakpoint -->",
}

// connectives at a message's end signal the thought continues in the next
// message.
var trailingConnectives = map[string]bool{
	"then":    true,
	"next":    true,
	"first":   true,
	"second":  true,
	"also":    true,
	"and":     true,
	"but":     true,
	"so":      true,
	"because": true,
}

// Short closing phrases. Matched after stripping trailing punctuation.
var ackPhrases = []string{
	"ok", "okay", "got it", "thanks", "thank you", "sounds good",
	"sure", "yes", "yep", "no problem", "will do", "great", "perfect",
	"done",
}

// CJK closing phrases, matched by containment in short messages.
var ackPhrasesCJK = []string{
	"好的", "谢谢", "收到", "明白", "了解", "没问题", "好了",
}

// ackMaxRunes bounds what still counts as a short acknowledgement.
const ackMaxRunes = 30

// terminalMinRunes is the minimum length for the long-reply terminal rule.
const terminalMinRunes = 80

// Detector evaluates messages for safe cut points. Detection is a pure,
// single-pass computation; the zero value is usable.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect classifies a message's content. Rules apply in priority order:
// manual markers, then blocking conditions, then positive signals, then a
// default of "not a breakpoint" — the bias is toward keeping history over
// cutting mid-thought.
func (d *Detector) Detect(content string) Result {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Result{Kind: KindNone}
	}

	for _, marker := range manualMarkers {
		if strings.Contains(trimmed, marker) {
			return Result{IsBreakpoint: true, Kind: KindManual, Confidence: 1.0}
		}
	}

	state := scan(trimmed)
	if state.inFence {
		return Result{Kind: KindNone, BlockingReason: "unclosed code fence"}
	}
	if state.round != 0 || state.square != 0 || state.curly != 0 {
		return Result{Kind: KindNone, BlockingReason: "unbalanced brackets"}
	}
	if state.quoteOpen {
		return Result{Kind: KindNone, BlockingReason: "unbalanced quotes"}
	}
	if reason := trailingIncomplete(trimmed); reason != "" {
		return Result{Kind: KindNone, BlockingReason: reason}
	}

	if isAcknowledgement(trimmed) {
		return Result{IsBreakpoint: true, Kind: KindAcknowledgement, Confidence: 0.9}
	}

	if utf8.RuneCountInString(trimmed) >= terminalMinRunes && endsTerminal(trimmed) {
		return Result{IsBreakpoint: true, Kind: KindTerminal, Confidence: 0.7}
	}

	return Result{Kind: KindNone}
}

// trailingIncomplete reports why the message end looks unfinished, or "".
func trailingIncomplete(trimmed string) string {
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, "…") {
		return "trailing ellipsis"
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case ',', ':', '，', '：', ';', '；':
		return "trailing comma or colon"
	}

	lastWord := strings.ToLower(strings.Trim(lastWordOf(trimmed), ".,!?"))
	if trailingConnectives[lastWord] {
		return "trailing connective"
	}

	// A final sentence that opens with a connective and never reaches
	// terminal punctuation reads as logic continuation.
	sentence := lastSentenceOf(trimmed)
	first := strings.ToLower(strings.Trim(firstWordOf(sentence), ".,!?"))
	if trailingConnectives[first] && !endsTerminal(trimmed) {
		return "trailing connective"
	}

	return ""
}

func endsTerminal(s string) bool {
	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '?', '!', '。', '？', '！':
		return true
	}
	return false
}

func lastWordOf(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func firstWordOf(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func lastSentenceOf(s string) string {
	cut := strings.LastIndexAny(s[:len(s)-1], ".!?。！？\n")
	if cut < 0 {
		return s
	}
	return strings.TrimSpace(s[cut+1:])
}

// isAcknowledgement reports whether the whole message is a short closing
// phrase carrying no retrievable information.
func isAcknowledgement(trimmed string) bool {
	if utf8.RuneCountInString(trimmed) > ackMaxRunes {
		return false
	}

	stripped := strings.TrimRightFunc(trimmed, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '！' || r == '。' || r == '，'
	})
	lower := strings.ToLower(stripped)

	for _, phrase := range ackPhrases {
		if lower == phrase {
			return true
		}
	}
	for _, phrase := range ackPhrasesCJK {
		if strings.Contains(stripped, phrase) {
			return true
		}
	}
	// Compound closings like "okay, thanks!" or "got it, will do".
	if len(lower) <= 24 {
		matches := 0
		for _, phrase := range ackPhrases {
			if strings.Contains(lower, phrase) {
				matches++
			}
		}
		if matches >= 2 {
			return true
		}
	}
	return false
}

// IsLowPriority reports whether a message may be dropped outright from a
// summary rather than compressed: acknowledgement-only content with no
// question in it.
func (d *Detector) IsLowPriority(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	if strings.ContainsAny(trimmed, "?？") {
		return false
	}
	return isAcknowledgement(trimmed)
}
