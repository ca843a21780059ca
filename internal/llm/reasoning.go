package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// SplitReasoning separates <think> blocks from the answer text. An unclosed
// block runs to the end of the input.
func SplitReasoning(text string) (reasoning, answer string) {
	var s ThinkSplitter
	r, a := s.Push(text)
	fr, fa := s.Flush()
	return strings.TrimSpace(r + fr), strings.TrimSpace(a + fa)
}

// ThinkSplitter splits a streamed text into reasoning and answer parts while
// tags may be cut across deltas.
type ThinkSplitter struct {
	inThink bool
	pending string
}

// Push consumes one delta and returns what can be emitted so far.
func (s *ThinkSplitter) Push(delta string) (reasoning, text string) {
	buf := s.pending + delta
	var rb, tb strings.Builder

	for buf != "" {
		tag := thinkOpen
		out := &tb
		if s.inThink {
			tag = thinkClose
			out = &rb
		}

		if i := strings.Index(buf, tag); i >= 0 {
			out.WriteString(buf[:i])
			buf = buf[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}

		keep := partialSuffix(buf, tag)
		out.WriteString(buf[:len(buf)-keep])
		buf = buf[len(buf)-keep:]
		break
	}

	s.pending = buf
	return rb.String(), tb.String()
}

// Flush returns whatever is still held back at the end of the stream.
func (s *ThinkSplitter) Flush() (reasoning, text string) {
	rest := s.pending
	s.pending = ""
	if s.inThink {
		return rest, ""
	}
	return "", rest
}

// partialSuffix is the length of the longest suffix of s that is a proper prefix of tag.
func partialSuffix(s, tag string) int {
	n := min(len(s), len(tag)-1)
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}
