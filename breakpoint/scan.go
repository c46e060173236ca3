package breakpoint

import "strings"

// scanState tracks structural nesting while scanning a message line by line.
// It is an explicit value threaded through the scan rather than closure
// state, so it can be tested in isolation.
type scanState struct {
	inFence   bool
	fenceLang string

	round  int // ( )
	square int // [ ]
	curly  int // { }

	quoteOpen bool // straight double quotes, parity tracked outside fences

	inList bool
}

// feedLine advances the state over one line of the message.
func (s *scanState) feedLine(line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		if s.inFence {
			s.inFence = false
			s.fenceLang = ""
		} else {
			s.inFence = true
			s.fenceLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		}
		return
	}

	if s.inFence {
		// Bracket and quote balance inside code is tracked too: an unclosed
		// brace in a fenced block is as bad a cut point as the fence itself.
		s.countDelimiters(trimmed)
		return
	}

	s.inList = isListLine(trimmed)
	s.countDelimiters(trimmed)
}

func (s *scanState) countDelimiters(line string) {
	for _, r := range line {
		switch r {
		case '(':
			s.round++
		case ')':
			s.round--
		case '[':
			s.square++
		case ']':
			s.square--
		case '{':
			s.curly++
		case '}':
			s.curly--
		case '"':
			s.quoteOpen = !s.quoteOpen
		}
	}
}

// balanced reports whether all delimiters opened during the scan were closed.
func (s *scanState) balanced() bool {
	return !s.inFence && !s.quoteOpen && s.round == 0 && s.square == 0 && s.curly == 0
}

func isListLine(trimmed string) bool {
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ ") {
		return true
	}
	// Ordered list: digits followed by ". " or ") "
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(trimmed) {
		return false
	}
	return (trimmed[i] == '.' || trimmed[i] == ')') && trimmed[i+1] == ' '
}

// scan folds the state over every line of text.
func scan(text string) scanState {
	var state scanState
	for _, line := range strings.Split(text, "\n") {
		state.feedLine(line)
	}
	return state
}
