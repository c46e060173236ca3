package contextfold

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// InstructionKind selects the instruction set sent with a summarization call.
type InstructionKind string

const (
	// InstructionLayer summarizes a fresh message range into a layer.
	InstructionLayer InstructionKind = "layer"

	// InstructionLayerCompact is the stricter variant for
	// information-dense ranges.
	InstructionLayerCompact InstructionKind = "layer_compact"

	// InstructionMilestone merges several layers into one milestone.
	InstructionMilestone InstructionKind = "milestone"

	// InstructionDistill re-summarizes milestones, dropping stale content.
	InstructionDistill InstructionKind = "distill"
)

// SummarizeRequest is one summarization call. The engine fills Text from the
// selected message range or prior layers, and Instructions from the kind.
type SummarizeRequest struct {
	// Text is the content to summarize.
	Text string

	// Kind selects the instruction set.
	Kind InstructionKind

	// Instructions is the full instruction text for Kind. Adapters may
	// pass it as the system prompt.
	Instructions string

	// MaxTokens is the response budget.
	MaxTokens int
}

// Summarizer performs the caller-supplied summarization call. The provider
// endpoint, credentials and model are the adapter's concern.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, req SummarizeRequest) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	return f(ctx, req)
}

// entityBlockInstruction asks for the machine-readable tail block that the
// engine parses entities and decisions out of.
const entityBlockInstruction = `After the summary, append exactly one fenced json block of the form:

` + "```json" + `
{"entities":[{"name":"...","kind":"person|date|number|preference","value":"..."}],"decisions":["..."]}
` + "```" + `

Report every named fact you extracted. Use an empty array when there is nothing to report.`

// layerInstructions is the instruction set for a normal layer. Priorities
// are ordered: entities verbatim, then agreements, then open todos.
const layerInstructions = `You summarize a slice of an ongoing conversation so it can replace the original messages.

Extract, in priority order:
1. Entities: names, dates, numbers and stated preferences, kept verbatim.
2. Established agreements and decisions.
3. Open todos.

Discard pleasantries, repetition and abandoned attempts. Target at most 200 characters of summary text.

` + entityBlockInstruction

// layerCompactInstructions is the stricter variant for dense ranges.
const layerCompactInstructions = `You summarize a dense slice of an ongoing conversation so it can replace the original messages.

Extract, in priority order:
1. Entities: names, dates, numbers and stated preferences, kept verbatim.
2. Established agreements and decisions.
3. Open todos.

Discard pleasantries, repetition and abandoned attempts. The source range is information-dense: you may use up to 300 characters, but prefer less.

` + entityBlockInstruction

// milestoneInstructions merges several layer summaries into one abstraction
// level higher.
const milestoneInstructions = `You merge several conversation summaries into one higher-level milestone.

Capture: the stage goal, core conclusions, open items, and the key timeline. Target at most 150 characters. Preserve the relative order of the facts you keep.

` + entityBlockInstruction

// distillInstructions compacts milestones, dropping stale content.
const distillInstructions = `You re-summarize several conversation milestones into one compacted milestone.

Keep only facts still relevant to the ongoing conversation; drop completed and obsolete items. Target at most 150 characters.

` + entityBlockInstruction

// instructionsFor returns the instruction text for a kind.
func instructionsFor(kind InstructionKind) string {
	switch kind {
	case InstructionLayerCompact:
		return layerCompactInstructions
	case InstructionMilestone:
		return milestoneInstructions
	case InstructionDistill:
		return distillInstructions
	default:
		return layerInstructions
	}
}

// formatRangeText renders messages as role-prefixed lines for the
// summarizer. Protected and low-priority messages are excluded: pinned
// content must never be folded into a summary, and bare acknowledgements
// carry nothing retrievable.
func (e *Engine) formatRangeText(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.protected() {
			continue
		}
		if e.detector.IsLowPriority(msg.Content) {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// summaryPayload is the parsed result of one summarization call.
type summaryPayload struct {
	summary   string
	entities  []EntityInfo
	decisions []string
}

// parseSummaryPayload splits the summarizer output into prose summary and
// the machine-readable entity block. Output without a parseable block is
// treated as all prose; a malformed block is dropped rather than failing
// the layer.
func parseSummaryPayload(raw string) summaryPayload {
	payload := summaryPayload{summary: strings.TrimSpace(raw)}

	start := strings.Index(raw, "```json")
	if start < 0 {
		return payload
	}
	rest := raw[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return payload
	}

	blob := strings.TrimSpace(rest[:end])
	if !gjson.Valid(blob) {
		return payload
	}

	prose := strings.TrimSpace(raw[:start] + rest[end+len("```"):])
	payload.summary = prose

	gjson.Get(blob, "entities").ForEach(func(_, value gjson.Result) bool {
		name := strings.TrimSpace(value.Get("name").String())
		if name == "" {
			return true
		}
		payload.entities = append(payload.entities, EntityInfo{
			Name:  name,
			Kind:  normalizeEntityKind(value.Get("kind").String()),
			Value: strings.TrimSpace(value.Get("value").String()),
		})
		return true
	})

	gjson.Get(blob, "decisions").ForEach(func(_, value gjson.Result) bool {
		if text := strings.TrimSpace(value.String()); text != "" {
			payload.decisions = append(payload.decisions, text)
		}
		return true
	})

	return payload
}
