package stream

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// Collects published events in order.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Publish(kind Kind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{Kind: kind, Text: text})
}

func (c *collector) texts(kind Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Returns data once, then fails with err.
type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestStartPumpRejectsStdin(t *testing.T) {
	_, err := StartPump(Stdin, strings.NewReader("x"), &collector{}, PumpOptions{})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestPumpDrainsUntilEOF(t *testing.T) {
	c := &collector{}
	p, err := StartPump(Stdout, strings.NewReader("abc\r\ndef"), c, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Wait(time.Second) {
		t.Fatal("pump did not stop at EOF")
	}
	if p.Err() != nil {
		t.Fatalf("Err() = %v, want nil", p.Err())
	}
	if diff := cmp.Diff([]string{"abc\r\n", "def"}, c.texts(Stdout)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPumpNilSourceFinishesImmediately(t *testing.T) {
	p, err := StartPump(Stderr, nil, &collector{}, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Wait(time.Second) {
		t.Fatal("pump with nil source did not stop")
	}
}

func TestPumpStopsOnClosedPipe(t *testing.T) {
	r, w := io.Pipe()
	c := &collector{}
	p, err := StartPump(Stdout, r, c, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := io.WriteString(w, "line\n"); err != nil {
		t.Fatal(err)
	}
	r.Close()

	if !p.Wait(time.Second) {
		t.Fatal("pump did not stop after source was closed")
	}
	if p.Err() != nil {
		t.Fatalf("Err() = %v, want nil for a closed source", p.Err())
	}
	if diff := cmp.Diff([]string{"line\n"}, c.texts(Stdout)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

// Polls until kind has the wanted events or the deadline passes.
func waitTexts(t *testing.T, c *collector, kind Kind, want []string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got := c.texts(kind)
		if cmp.Equal(want, got) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("events mismatch (-want +got):\n%s", cmp.Diff(want, got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPumpEmitsPromptWithoutNewline(t *testing.T) {
	r, w := io.Pipe()
	c := &collector{}
	p, err := StartPump(Stdout, r, c, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		w.Close()
		p.Wait(time.Second)
	}()

	if _, err := io.WriteString(w, "Name? "); err != nil {
		t.Fatal(err)
	}
	waitTexts(t, c, Stdout, []string{"Name? "})

	if _, err := io.WriteString(w, "ok\n"); err != nil {
		t.Fatal(err)
	}
	waitTexts(t, c, Stdout, []string{"Name? ", "ok\n"})
}

func TestPumpHoldsCarriageReturnAcrossReads(t *testing.T) {
	r, w := io.Pipe()
	c := &collector{}
	p, err := StartPump(Stdout, r, c, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := io.WriteString(w, "abc\r"); err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "\ndef"); err != nil {
		t.Fatal(err)
	}
	waitTexts(t, c, Stdout, []string{"abc\r\n", "def"})

	w.Close()
	if !p.Wait(time.Second) {
		t.Fatal("pump did not stop at EOF")
	}
}

func TestPumpReportsReadFailure(t *testing.T) {
	rec := newCountingRecorder()
	c := &collector{}
	src := &failingReader{data: "partial", err: errors.New("device gone")}

	p, err := StartPump(Stderr, src, c, PumpOptions{Recorder: rec})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Wait(time.Second) {
		t.Fatal("pump did not stop on read failure")
	}
	if !errors.Is(p.Err(), ErrPump) {
		t.Fatalf("Err() = %v, want ErrPump", p.Err())
	}
	if rec.failures["stderr"] != 1 {
		t.Fatalf("failures = %v, want one stderr failure", rec.failures)
	}
	if diff := cmp.Diff([]string{"partial"}, c.texts(Stderr)); diff != "" {
		t.Fatalf("buffered output not flushed (-want +got):\n%s", diff)
	}
}

func TestPumpWaitTimesOut(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	p, err := StartPump(Stdout, r, &collector{}, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Wait(10 * time.Millisecond) {
		t.Fatal("Wait reported stop while the source was still open")
	}
	if p.Err() != nil {
		t.Fatalf("Err() = %v while running, want nil", p.Err())
	}
	r.Close()
	p.Wait(0)
}

func TestConcurrentPumpsKeepLinesIntact(t *testing.T) {
	const lines = 200

	sink := NewSink(SinkOptions{})
	shared := &collector{}
	sink.Subscribe(Stdout, HandlerFunc(func(ev Event) error { shared.Publish(ev.Kind, ev.Text); return nil }))
	sink.Subscribe(Stderr, HandlerFunc(func(ev Event) error { shared.Publish(ev.Kind, ev.Text); return nil }))

	stdout := strings.Repeat("out-line\r\n", lines)
	stderr := strings.Repeat("err-line\n", lines)

	po, err := StartPump(Stdout, strings.NewReader(stdout), sink, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	pe, err := StartPump(Stderr, strings.NewReader(stderr), sink, PumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	po.Wait(0)
	pe.Wait(0)

	for _, text := range shared.texts(Stdout) {
		if text != "out-line\r\n" {
			t.Fatalf("corrupted stdout line %q", text)
		}
	}
	for _, text := range shared.texts(Stderr) {
		if text != "err-line\n" {
			t.Fatalf("corrupted stderr line %q", text)
		}
	}
	if got := strings.Join(shared.texts(Stdout), ""); got != stdout {
		t.Fatal("stdout lines reordered or lost")
	}
	if got := len(shared.texts(Stderr)); got != lines {
		t.Fatalf("stderr lines = %d, want %d", got, lines)
	}
}
