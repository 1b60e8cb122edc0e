package runtime

import (
	"io"
	"sync"
)

// In-memory pipe feeding an exec's standard input.
//
// The session writes operator lines to [stdinPipe.Writer]; containerd copies
// from the pipe into the shim's stdin FIFO. The shim holds both ends of that
// FIFO, so closing the writer alone never reaches the process. Done fires on
// the first EOF seen by containerd's copy loop, which is the cue to call
// CloseIO on the exec.
type stdinPipe struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
	done chan struct{} // Closed on the first EOF.
}

// Creates an open pipe.
func newStdinPipe() *stdinPipe {
	r, w := io.Pipe()
	return &stdinPipe{r: r, w: w, done: make(chan struct{})}
}

// Reads operator input, signalling Done on EOF.
func (s *stdinPipe) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err == io.EOF {
		s.once.Do(func() { close(s.done) })
	}
	return n, err
}

// Returns the operator end of the pipe.
func (s *stdinPipe) Writer() io.WriteCloser {
	return s.w
}

// Returns a channel closed once the operator end was closed and drained.
func (s *stdinPipe) Done() <-chan struct{} {
	return s.done
}

// Unblocks any reader still waiting for input.
func (s *stdinPipe) Close() error {
	return s.r.Close()
}
