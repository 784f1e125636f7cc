package llm

import "strings"

// Delimiter spellings that mark reasoning spans inside plain content
// streams. Matching is case-insensitive; first match wins and nesting is
// not modeled — providers do not guarantee well-formed output, so this
// stays a heuristic rather than a grammar.
var (
	thinkStartTags = []string{"<think>", "<thinking>", "<reasoning>", "<|begin_of_thought|>"}
	thinkEndTags   = []string{"</think>", "</thinking>", "</reasoning>", "<|end_of_thought|>"}
)

// splitterFlushThreshold bounds how much text the splitter may buffer while
// waiting for a delimiter, so end-to-end latency stays bounded when no tag
// is present.
const splitterFlushThreshold = 50

// ThinkSplitter separates a single content stream into "content" and
// "thinking" sub-channels by detecting reasoning delimiters that may
// straddle fragment boundaries.
//
// A threshold flush always retains the longest buffer suffix that could
// still begin a delimiter, so the concatenated output per channel is
// invariant under how the stream was fragmented.
type ThinkSplitter struct {
	inThinking bool
	buffer     string
}

// NewThinkSplitter creates a splitter in content mode with an empty buffer.
func NewThinkSplitter() *ThinkSplitter {
	return &ThinkSplitter{}
}

// Write appends a content fragment and returns the events it releases.
// Returned events are only EventContent and EventThinking.
func (s *ThinkSplitter) Write(fragment string) []StreamEvent {
	if fragment == "" {
		return nil
	}
	s.buffer += fragment

	var events []StreamEvent
	for {
		tags := thinkStartTags
		if s.inThinking {
			tags = thinkEndTags
		}

		start, end := earliestTag(s.buffer, tags)
		if start >= 0 {
			if before := s.buffer[:start]; before != "" {
				events = append(events, s.channelEvent(before))
			}
			s.buffer = s.buffer[end:]
			s.inThinking = !s.inThinking
			continue
		}

		// No delimiter in the buffer. Release everything past the longest
		// suffix that might still grow into one, once the threshold is hit.
		if len(s.buffer) > splitterFlushThreshold {
			keep := tagPrefixHoldback(s.buffer, tags)
			if emittable := s.buffer[:len(s.buffer)-keep]; emittable != "" {
				events = append(events, s.channelEvent(emittable))
				s.buffer = s.buffer[len(emittable):]
			}
		}
		return events
	}
}

// Flush releases any buffered remainder under the current mode. Called at
// end of stream.
func (s *ThinkSplitter) Flush() []StreamEvent {
	if s.buffer == "" {
		return nil
	}
	ev := s.channelEvent(s.buffer)
	s.buffer = ""
	return []StreamEvent{ev}
}

func (s *ThinkSplitter) channelEvent(text string) StreamEvent {
	if s.inThinking {
		return NewThinkingEvent(text)
	}
	return NewContentEvent(text)
}

// earliestTag returns the byte range of the leftmost case-insensitive match
// of any tag, or (-1, -1). Ties at the same position resolve in tag-list
// order.
func earliestTag(s string, tags []string) (start, end int) {
	lower := lowerASCII(s)
	start = -1
	for _, tag := range tags {
		if i := strings.Index(lower, tag); i >= 0 && (start < 0 || i < start) {
			start = i
			end = i + len(tag)
		}
	}
	if start < 0 {
		return -1, -1
	}
	return start, end
}

// tagPrefixHoldback returns the length of the longest suffix of s that is a
// proper prefix of any tag. That suffix must stay buffered: the next
// fragment could complete the delimiter.
func tagPrefixHoldback(s string, tags []string) int {
	lower := lowerASCII(s)
	keep := 0
	for _, tag := range tags {
		max := len(tag) - 1
		if max > len(lower) {
			max = len(lower)
		}
		for l := max; l > keep; l-- {
			if strings.HasSuffix(lower, tag[:l]) {
				keep = l
				break
			}
		}
	}
	return keep
}

// lowerASCII lowercases A-Z only, preserving byte offsets for arbitrary
// UTF-8 input. The delimiter set is pure ASCII.
func lowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
