package stream

import "strings"

const (
	lineFeed       = '\n'
	carriageReturn = '\r'
)

// Accumulates runes into lines.
//
// A Splitter is not safe for concurrent use. Each pump owns its own instance;
// sharing one between streams would splice unrelated output into one line.
type Splitter struct {
	buf  strings.Builder // Runes of the line in progress.
	last rune            // Most recently appended rune, valid when buf is non-empty.
	emit func(string)    // Receives each completed line.
}

// Creates a splitter that passes every completed line to emit.
func NewSplitter(emit func(string)) *Splitter {
	return &Splitter{emit: emit}
}

// Appends one rune, emitting any line it completes.
//
// A pending "\r" followed by anything but "\n" is flushed on its own before r
// is appended, so old-style line endings split without waiting for "\n".
func (s *Splitter) Feed(r rune) {
	if r != lineFeed && s.buf.Len() > 0 && s.last == carriageReturn {
		s.Flush()
	}

	s.buf.WriteRune(r)
	s.last = r

	if r == lineFeed {
		s.Flush()
	}
}

// Emits a partial line once no more input is available, so prompts without
// a terminator reach the console.
//
// A pending "\r" is kept back since the next read may complete it with "\n".
func (s *Splitter) FlushPartial() {
	if s.last == carriageReturn {
		return
	}
	s.Flush()
}

// Emits the accumulated content, if any, and resets the accumulator.
//
// Called when the stream ends to deliver a final line that has no terminator.
func (s *Splitter) Flush() {
	if s.buf.Len() == 0 {
		return
	}
	line := s.buf.String()
	s.buf.Reset()
	s.last = 0
	s.emit(line)
}

// Splits a complete string into lines using the same rules as [Splitter].
//
// Concatenating the result reproduces text exactly.
func Split(text string) []string {
	var lines []string
	s := NewSplitter(func(line string) {
		lines = append(lines, line)
	})
	for _, r := range text {
		s.Feed(r)
	}
	s.Flush()
	return lines
}
