package stream

import (
	"bytes"
	"errors"
	"testing"
)

// Counts calls made through the [Recorder] interface.
type countingRecorder struct {
	lines    map[string]int
	failures map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{lines: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) LinePublished(stream string) { r.lines[stream]++ }
func (r *countingRecorder) PumpFailed(stream string)    { r.failures[stream]++ }

func TestSinkPublishWithoutHandler(t *testing.T) {
	s := NewSink(SinkOptions{})
	s.Publish(Stdout, "nobody listens\n")
}

func TestSinkDispatchesByKind(t *testing.T) {
	var out, errOut bytes.Buffer
	s := NewSink(SinkOptions{})
	Echo(s, &out, &errOut)

	s.Publish(Stdout, "to stdout\n")
	s.Publish(Stderr, "to stderr\n")
	s.Publish(Stdin, "ignored\n")

	if out.String() != "to stdout\n" {
		t.Fatalf("stdout = %q", out.String())
	}
	if errOut.String() != "to stderr\n" {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestSinkDropsEmptyText(t *testing.T) {
	calls := 0
	s := NewSink(SinkOptions{})
	s.Subscribe(Stdout, HandlerFunc(func(Event) error {
		calls++
		return nil
	}))

	s.Publish(Stdout, "")
	if calls != 0 {
		t.Fatalf("handler called %d times for empty text", calls)
	}
}

func TestSinkSubscribeReplacesAndRemoves(t *testing.T) {
	var first, second bytes.Buffer
	s := NewSink(SinkOptions{})

	s.Subscribe(Stdout, WriterHandler(&first))
	s.Subscribe(Stdout, WriterHandler(&second))
	s.Publish(Stdout, "x")

	if first.Len() != 0 || second.String() != "x" {
		t.Fatalf("first = %q, second = %q; want only second to receive", first.String(), second.String())
	}

	s.Subscribe(Stdout, nil)
	s.Publish(Stdout, "y")
	if second.String() != "x" {
		t.Fatalf("second = %q after removal, want %q", second.String(), "x")
	}
}

func TestSinkSwallowsHandlerFailures(t *testing.T) {
	rec := newCountingRecorder()
	s := NewSink(SinkOptions{Recorder: rec})

	s.Subscribe(Stdout, HandlerFunc(func(Event) error {
		return errors.New("broken handler")
	}))
	s.Subscribe(Stderr, HandlerFunc(func(Event) error {
		panic("handler panic")
	}))

	s.Publish(Stdout, "a\n")
	s.Publish(Stderr, "b\n")

	if rec.lines["stdout"] != 1 || rec.lines["stderr"] != 1 {
		t.Fatalf("lines = %v, want one per stream", rec.lines)
	}
}
