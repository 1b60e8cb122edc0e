package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sourcegraph/conc/panics"
)

// Size of the read buffer placed in front of the source.
const defaultReadBufferSize = 4096

// Configures a [Pump].
type PumpOptions struct {
	Logger   *slog.Logger // Logger for read failures. Nil uses slog.Default().
	Recorder Recorder     // Optional failure counter.
}

// Drains one process output stream into a [Publisher] on a background
// goroutine.
//
// The pump stops when the source reports end of stream or is closed, or on
// the first read failure. Failures are logged and kept in [Pump.Err]; they are
// never retried since a broken stream handle does not recover.
type Pump struct {
	kind     Kind
	src      io.Reader
	sink     Publisher
	splitter *Splitter
	logger   *slog.Logger
	recorder Recorder
	done     chan struct{} // Closed when the goroutine returns.
	err      error         // Failure that stopped the pump, set before done is closed.
}

// Starts a pump for kind reading from src.
//
// Only [Stdout] and [Stderr] can be pumped. A nil src yields a pump that is
// already finished.
func StartPump(kind Kind, src io.Reader, sink Publisher, opts PumpOptions) (*Pump, error) {
	if kind != Stdout && kind != Stderr {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pump{
		kind:     kind,
		src:      src,
		sink:     sink,
		logger:   logger,
		recorder: opts.Recorder,
		done:     make(chan struct{}),
	}
	p.splitter = NewSplitter(func(line string) {
		p.sink.Publish(p.kind, line)
	})

	go p.run()
	return p, nil
}

// Returns the stream this pump drains.
func (p *Pump) Kind() Kind {
	return p.kind
}

// Returns a channel closed once the pump has stopped.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Blocks until the pump stops or timeout elapses, reporting whether it stopped.
//
// A non-positive timeout waits indefinitely.
func (p *Pump) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-p.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Returns the failure that stopped the pump, or nil if it ended normally or is
// still running.
func (p *Pump) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Runs the read loop and records how it ended.
func (p *Pump) run() {
	defer close(p.done)

	var pc panics.Catcher
	pc.Try(func() {
		p.err = p.drain()
	})
	if r := pc.Recovered(); r != nil {
		p.err = fmt.Errorf("%w: %s: %w", ErrPump, p.kind, r.AsError())
	}

	if p.err != nil {
		p.logger.Warn("error processing std stream", "stream", p.kind.String(), "error", p.err)
		if p.recorder != nil {
			p.recorder.PumpFailed(p.kind.String())
		}
		return
	}

	p.logger.Debug("stream drained", "stream", p.kind.String())
}

// Reads runes until the stream ends, feeding the splitter.
//
// A partial line is emitted whenever the read buffer runs dry, so output the
// process is waiting on is not held back. Whatever is buffered when the loop
// ends is flushed, including on failure, so no captured output is dropped.
func (p *Pump) drain() error {
	if p.src == nil {
		return nil
	}
	defer p.splitter.Flush()

	r := bufio.NewReaderSize(p.src, defaultReadBufferSize)
	for {
		c, _, err := r.ReadRune()
		if err != nil {
			if isEndOfStream(err) {
				return nil
			}
			return fmt.Errorf("%w: %s: %w", ErrPump, p.kind, err)
		}
		p.splitter.Feed(c)
		if r.Buffered() == 0 {
			p.splitter.FlushPartial()
		}
	}
}

// Reports whether err means the source ended or was torn down by its owner.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}
