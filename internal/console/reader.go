package console

import (
	"bufio"
	"io"
)

// One line of operator input, or the error that ended input.
type lineResult struct {
	text string
	err  error
}

// Reads operator lines on a background goroutine and delivers them on a
// channel, so blocking console reads can be selected against other events.
//
// The goroutine stays blocked on the console until the next line or EOF even
// after nobody is listening; the console cannot be interrupted portably.
type lineReader struct {
	lines chan lineResult // Receives each line, then one result carrying the terminal error.
}

// Starts reading lines from r.
func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan lineResult)}
	go lr.run(bufio.NewReader(r))
	return lr
}

func (lr *lineReader) run(br *bufio.Reader) {
	defer close(lr.lines)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			lr.lines <- lineResult{text: text}
		}
		if err != nil {
			lr.lines <- lineResult{err: err}
			return
		}
	}
}
