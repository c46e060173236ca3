package contextfold

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageRange is a half-open [Start, End) index range into the caller's
// message list.
type MessageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Span is the number of messages the range covers.
func (r MessageRange) Span() int {
	return r.End - r.Start
}

// SummaryLayer is one immutable summarized slice of conversation history.
// Once created, SummaryText and Range never change; layers are only appended
// or wholly replaced by a milestone merge.
type SummaryLayer struct {
	ID uuid.UUID `json:"id"`

	// SummaryText is the full emitted block: header, range marker,
	// summary body, END sentinel and alignment padding.
	SummaryText string `json:"summary_text"`

	// TokenCount is the estimate of SummaryText after boundary alignment.
	TokenCount int `json:"token_count"`

	Range     MessageRange `json:"message_range"`
	CreatedAt time.Time    `json:"created_at"`

	// IsMilestone marks a layer produced by a milestone merge or
	// distillation.
	IsMilestone bool `json:"is_milestone"`

	// Entities lists the names extracted by this layer's summarization.
	Entities []string `json:"entities,omitempty"`

	// Decisions lists agreements established in this layer's range.
	Decisions []string `json:"decisions,omitempty"`
}

// EntityKind classifies an extracted entity.
type EntityKind string

const (
	EntityPerson     EntityKind = "person"
	EntityDate       EntityKind = "date"
	EntityNumber     EntityKind = "number"
	EntityPreference EntityKind = "preference"
)

func normalizeEntityKind(kind string) EntityKind {
	switch EntityKind(strings.ToLower(strings.TrimSpace(kind))) {
	case EntityPerson:
		return EntityPerson
	case EntityDate:
		return EntityDate
	case EntityNumber:
		return EntityNumber
	default:
		return EntityPreference
	}
}

// EntityInfo is one named fact tracked across the whole session. Entities
// are updated in place by name and never deleted: a wrong-but-stable entry
// is cheaper for prefix caching than churn.
type EntityInfo struct {
	Name             string     `json:"name"`
	Kind             EntityKind `json:"kind"`
	Value            string     `json:"value"`
	FirstSeenLayer   int        `json:"first_seen_layer"`
	LastUpdatedLayer int        `json:"last_updated_layer"`
}

// Layer block framing. The range marker and END sentinel let later passes
// parse prior layers without re-summarizing them; the header is stable so
// its bytes stay cache-friendly.
const (
	layerHeaderMilestone = "### Milestone"
	layerHeaderLayer     = "### Context layer"
	layerEndSentinel     = "<!-- END -->"
)

// wrapLayerText frames a summary body into the emitted block. Alignment
// padding is applied to the whole block afterwards.
func wrapLayerText(seq int, r MessageRange, isMilestone bool, body string) string {
	header := layerHeaderLayer
	if isMilestone {
		header = layerHeaderMilestone
	}
	return fmt.Sprintf("%s %d\n<!-- range:%d-%d -->\n%s\n%s",
		header, seq, r.Start, r.End, strings.TrimSpace(body), layerEndSentinel)
}

// parseLayerRange extracts the range marker from an emitted block. Used by
// prewarm validation.
func parseLayerRange(summaryText string) (MessageRange, bool) {
	const marker = "<!-- range:"
	start := strings.Index(summaryText, marker)
	if start < 0 {
		return MessageRange{}, false
	}
	rest := summaryText[start+len(marker):]
	end := strings.Index(rest, " -->")
	if end < 0 {
		return MessageRange{}, false
	}
	var r MessageRange
	if _, err := fmt.Sscanf(rest[:end], "%d-%d", &r.Start, &r.End); err != nil {
		return MessageRange{}, false
	}
	return r, true
}

// renderEntityMap emits the entity map as a small, stable block. Sorted by
// name so unchanged sessions produce byte-identical output: the block is
// placed earliest in the prompt precisely because it changes least often.
func renderEntityMap(entities map[string]*EntityInfo) string {
	if len(entities) == 0 {
		return ""
	}

	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("### Known entities\n")
	for _, name := range names {
		info := entities[name]
		fmt.Fprintf(&b, "- %s (%s): %s\n", info.Name, info.Kind, info.Value)
	}
	return b.String()
}
