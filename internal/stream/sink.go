package stream

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Receives a completed line.
//
// Handlers run while the sink lock is held and must not publish back into the
// same sink.
type Handler interface {
	HandleLine(Event) error
}

// Adapts a plain function to the [Handler] interface.
type HandlerFunc func(Event) error

// Calls f(ev).
func (f HandlerFunc) HandleLine(ev Event) error {
	return f(ev)
}

// Accepts lines from pumps.
type Publisher interface {
	Publish(kind Kind, text string)
}

// Counts line and pump activity, typically backed by Prometheus.
type Recorder interface {
	LinePublished(stream string)
	PumpFailed(stream string)
}

// Configures a [Sink].
type SinkOptions struct {
	Logger   *slog.Logger // Logger for swallowed handler failures. Nil uses slog.Default().
	Recorder Recorder     // Optional activity counters.
}

// Dispatches line events to at most one handler per stream kind.
//
// Every dispatch happens under a single mutex, so two pumps publishing at the
// same time never interleave partial output. Only the dispatch is serialized;
// pumps read and accumulate independently.
type Sink struct {
	mu       sync.Mutex
	handlers map[Kind]Handler // Registered handler per kind.
	logger   *slog.Logger
	recorder Recorder
}

// Creates a sink with no handlers.
func NewSink(opts SinkOptions) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		handlers: make(map[Kind]Handler),
		logger:   logger,
		recorder: opts.Recorder,
	}
}

// Registers h as the handler for kind, replacing any previous one.
//
// A nil handler removes the registration.
func (s *Sink) Subscribe(kind Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil {
		delete(s.handlers, kind)
		return
	}
	s.handlers[kind] = h
}

// Dispatches text to the handler registered for kind.
//
// Empty text is dropped. Publishing to a kind without a handler is a no-op.
// Errors and panics raised by the handler are logged and swallowed so that a
// faulty handler cannot stop the pump that called it.
func (s *Sink) Publish(kind Kind, text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handlers[kind]
	if !ok {
		return
	}

	if s.recorder != nil {
		s.recorder.LinePublished(kind.String())
	}

	var err error
	if r := panics.Try(func() { err = h.HandleLine(Event{Kind: kind, Text: text}) }); r != nil {
		err = r.AsError()
	}
	if err != nil {
		s.logger.Warn("line handler failed", "stream", kind.String(), "error", fmt.Errorf("%w: %w", ErrHandler, err))
	}
}

// Returns a handler that writes each line verbatim to w.
func WriterHandler(w io.Writer) Handler {
	return HandlerFunc(func(ev Event) error {
		_, err := io.WriteString(w, ev.Text)
		return err
	})
}

// Installs the default handlers: stdout lines go to stdout and stderr lines go
// to stderr. A nil writer leaves that kind unhandled.
func Echo(s *Sink, stdout, stderr io.Writer) {
	if stdout != nil {
		s.Subscribe(Stdout, WriterHandler(stdout))
	}
	if stderr != nil {
		s.Subscribe(Stderr, WriterHandler(stderr))
	}
}
