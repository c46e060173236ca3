package breakpoint

// FindBestBreakpoint searches outward from preferredIdx for the nearest
// message that is a safe cut point, staying within [rangeStart, len(contents)).
// It returns -1 when no breakpoint exists in the range.
func (d *Detector) FindBestBreakpoint(contents []string, rangeStart, preferredIdx int) int {
	if len(contents) == 0 || rangeStart >= len(contents) {
		return -1
	}
	if rangeStart < 0 {
		rangeStart = 0
	}
	if preferredIdx < rangeStart {
		preferredIdx = rangeStart
	}
	if preferredIdx >= len(contents) {
		preferredIdx = len(contents) - 1
	}

	maxOffset := len(contents) - rangeStart
	for offset := 0; offset < maxOffset; offset++ {
		// Prefer earlier indices on ties: cutting sooner keeps more raw
		// history in the dynamic tail.
		if idx := preferredIdx - offset; idx >= rangeStart {
			if d.Detect(contents[idx]).IsBreakpoint {
				return idx
			}
		}
		if offset == 0 {
			continue
		}
		if idx := preferredIdx + offset; idx < len(contents) {
			if d.Detect(contents[idx]).IsBreakpoint {
				return idx
			}
		}
	}
	return -1
}

// LastBreakpointIn returns the highest index in [rangeStart, end) whose
// content is a breakpoint, or -1.
func (d *Detector) LastBreakpointIn(contents []string, rangeStart, end int) int {
	if end > len(contents) {
		end = len(contents)
	}
	if rangeStart < 0 {
		rangeStart = 0
	}
	for i := end - 1; i >= rangeStart; i-- {
		if d.Detect(contents[i]).IsBreakpoint {
			return i
		}
	}
	return -1
}
