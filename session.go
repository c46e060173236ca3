package contextfold

import (
	"strings"
	"time"
)

// sessionCache is one session's compression state. It is owned exclusively
// by the engine; all access happens under the engine mutex, and mutation
// happens only from the single writer that holds the session at commit time.
//
// Layers live in an append-only arena of immutable records. The active set
// is a pair of index lists (layers, milestones) that a milestone merge swaps
// atomically; records themselves are never edited, which makes the
// "never edit a layer" invariant structural rather than conventional.
type sessionCache struct {
	id string

	arena        []SummaryLayer
	layerIdx     []int
	milestoneIdx []int

	entities map[string]*EntityInfo

	// processedMessageCount is the authoritative bookmark of how much raw
	// history has been folded into layers. Monotonically increasing.
	processedMessageCount int

	pendingCompression bool

	// asyncInProgress marks a compression job in flight, background or
	// synchronous. asyncDone is closed when it finishes.
	asyncInProgress bool
	asyncDone       chan struct{}

	// generation is bumped by ClearSession so an in-flight async job
	// discards its result instead of committing into a recycled session.
	generation uint64

	consecutiveCacheMisses int
	calibrationOffset      float64

	// layerSeq numbers layers for their block headers, independent of
	// arena position.
	layerSeq int

	createdAt time.Time
}

func newSessionCache(id string) *sessionCache {
	return &sessionCache{
		id:        id,
		entities:  make(map[string]*EntityInfo),
		createdAt: time.Now(),
	}
}

// layers returns the active non-milestone layers in chronological order.
func (s *sessionCache) layers() []SummaryLayer {
	out := make([]SummaryLayer, 0, len(s.layerIdx))
	for _, idx := range s.layerIdx {
		out = append(out, s.arena[idx])
	}
	return out
}

// milestones returns the active milestone layers in chronological order.
func (s *sessionCache) milestones() []SummaryLayer {
	out := make([]SummaryLayer, 0, len(s.milestoneIdx))
	for _, idx := range s.milestoneIdx {
		out = append(out, s.arena[idx])
	}
	return out
}

// appendLayer adds a new immutable layer record and activates it.
func (s *sessionCache) appendLayer(layer SummaryLayer) {
	s.arena = append(s.arena, layer)
	idx := len(s.arena) - 1
	if layer.IsMilestone {
		s.milestoneIdx = append(s.milestoneIdx, idx)
	} else {
		s.layerIdx = append(s.layerIdx, idx)
	}
}

// mergeOldestLayers replaces the oldest mergeCount active layers with a
// milestone. The swap builds fresh index lists; arena records are untouched.
func (s *sessionCache) mergeOldestLayers(mergeCount int, milestone SummaryLayer) {
	s.arena = append(s.arena, milestone)
	milestoneArenaIdx := len(s.arena) - 1

	remaining := make([]int, 0, len(s.layerIdx)-mergeCount)
	remaining = append(remaining, s.layerIdx[mergeCount:]...)
	s.layerIdx = remaining
	s.milestoneIdx = append(s.milestoneIdx, milestoneArenaIdx)
}

// distillMilestones replaces all active milestones except the newest with a
// single distilled milestone, preserving chronological order.
func (s *sessionCache) distillMilestones(distilled SummaryLayer) {
	newest := s.milestoneIdx[len(s.milestoneIdx)-1]

	s.arena = append(s.arena, distilled)
	distilledIdx := len(s.arena) - 1

	s.milestoneIdx = []int{distilledIdx, newest}
}

// mergeEntities folds newly extracted entities into the session map,
// updating in place by name. Entities are never deleted.
func (s *sessionCache) mergeEntities(entities []EntityInfo, layerSeq int) {
	for _, entity := range entities {
		existing, ok := s.entities[entity.Name]
		if !ok {
			info := entity
			info.FirstSeenLayer = layerSeq
			info.LastUpdatedLayer = layerSeq
			s.entities[entity.Name] = &info
			continue
		}
		existing.Kind = entity.Kind
		existing.Value = entity.Value
		existing.LastUpdatedLayer = layerSeq
	}
}

// summaryText concatenates milestones then layers in chronological order.
func (s *sessionCache) summaryText() string {
	blocks := make([]string, 0, len(s.milestoneIdx)+len(s.layerIdx))
	for _, layer := range s.milestones() {
		blocks = append(blocks, layer.SummaryText)
	}
	for _, layer := range s.layers() {
		blocks = append(blocks, layer.SummaryText)
	}
	return strings.Join(blocks, "\n\n")
}

// entityMapText renders the stable entity block.
func (s *sessionCache) entityMapText() string {
	return renderEntityMap(s.entities)
}

// totalTokens sums the aligned token counts of all active layers.
func (s *sessionCache) totalTokens() int {
	total := 0
	for _, idx := range s.milestoneIdx {
		total += s.arena[idx].TokenCount
	}
	for _, idx := range s.layerIdx {
		total += s.arena[idx].TokenCount
	}
	return total
}

// cold reports whether the session has no compression state yet.
func (s *sessionCache) cold() bool {
	return len(s.arena) == 0 && s.processedMessageCount == 0
}

func (s *sessionCache) stats() SessionStats {
	return SessionStats{
		LayerCount:             len(s.layerIdx),
		MilestoneCount:         len(s.milestoneIdx),
		TotalTokens:            s.totalTokens(),
		ProcessedMessages:      s.processedMessageCount,
		ConsecutiveCacheMisses: s.consecutiveCacheMisses,
	}
}
