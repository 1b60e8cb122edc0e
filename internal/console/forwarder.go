package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Interval between iterations in [ModePoll].
const DefaultPollInterval = 100 * time.Millisecond

// Selects how a [Forwarder] waits for process exit.
type Mode int

const (
	ModeSelect Mode = iota // Wait on input, exit and cancellation simultaneously.
	ModePoll               // Check exit, forward one line, sleep; repeat.
)

// Returns the flag spelling of the mode.
func (m Mode) String() string {
	if m == ModePoll {
		return "poll"
	}
	return "select"
}

// Parses a mode name as accepted by [Mode.String].
func ParseMode(s string) (Mode, error) {
	switch s {
	case "select", "":
		return ModeSelect, nil
	case "poll":
		return ModePoll, nil
	default:
		return 0, fmt.Errorf("unknown input mode %q", s)
	}
}

// The parts of a process the forwarder needs.
type Process interface {
	Stdin() io.WriteCloser
	ExitCode() (int, error)
	Exited() <-chan struct{}
}

// Configures a [Forwarder].
type Config struct {
	Input        io.Reader     // Operator input. Nil behaves like immediate end of input.
	Mode         Mode          // Wait strategy.
	PollInterval time.Duration // Sleep between iterations in ModePoll. Zero uses DefaultPollInterval.
	Logger       *slog.Logger  // Nil uses slog.Default().
}

// Forwards operator lines to a process until it exits.
type Forwarder struct {
	mode     Mode
	interval time.Duration
	logger   *slog.Logger
	reader   *lineReader // Nil when there is no operator input.
}

// Creates a forwarder and starts reading operator input.
func New(cfg Config) *Forwarder {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := &Forwarder{
		mode:     cfg.Mode,
		interval: interval,
		logger:   logger,
	}
	if cfg.Input != nil {
		f.reader = newLineReader(cfg.Input)
	}
	return f
}

// Forwards input to p until it exits and returns its exit code.
//
// Cancelling ctx ends the loop with the context's error; the process is left
// running for the caller to release.
func (f *Forwarder) Run(ctx context.Context, p Process) (int, error) {
	stdin := p.Stdin()
	if f.reader == nil && stdin != nil {
		f.closeStdin(stdin)
		stdin = nil
	}

	if f.mode == ModePoll {
		return f.poll(ctx, p, stdin)
	}
	return f.wait(ctx, p, stdin)
}

// Implements [ModePoll].
func (f *Forwarder) poll(ctx context.Context, p Process, stdin io.WriteCloser) (int, error) {
	for {
		if st := QueryExit(p); st.Status == Exited {
			return st.Code, nil
		}

		if stdin != nil {
			select {
			case res := <-f.reader.lines:
				stdin = f.forward(stdin, res)
			case <-ctx.Done():
				return -1, ctx.Err()
			}
		}

		select {
		case <-time.After(f.interval):
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
}

// Implements [ModeSelect].
//
// Lines are written one at a time on a separate goroutine, so a write stalled
// on a process that stopped reading never delays exit detection.
func (f *Forwarder) wait(ctx context.Context, p Process, stdin io.WriteCloser) (int, error) {
	var written <-chan io.WriteCloser // Non-nil while a write is in flight.
	for {
		var lines <-chan lineResult
		if stdin != nil && written == nil {
			lines = f.reader.lines
		}

		select {
		case <-p.Exited():
			if written != nil {
				f.closeStdin(stdin)
			}
			st := QueryExit(p)
			if st.Status != Exited {
				return -1, ErrExitStatusUnknown
			}
			return st.Code, nil
		case res := <-lines:
			written = f.forwardAsync(stdin, res)
		case stdin = <-written:
			written = nil
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
}

// Runs [Forwarder.forward] on its own goroutine and delivers the next sink.
func (f *Forwarder) forwardAsync(stdin io.WriteCloser, res lineResult) <-chan io.WriteCloser {
	next := make(chan io.WriteCloser, 1)
	go func() {
		next <- f.forward(stdin, res)
	}()
	return next
}

// Writes one result to stdin and returns the sink to use for the next line.
//
// The returned sink is nil once input has ended or stdin stopped accepting
// writes; stdin has then been closed so the process sees end of input.
func (f *Forwarder) forward(stdin io.WriteCloser, res lineResult) io.WriteCloser {
	if res.text != "" {
		if _, err := io.WriteString(stdin, res.text); err != nil {
			f.logger.Warn("failed to write to process stdin", "error", err)
			f.closeStdin(stdin)
			return nil
		}
		return stdin
	}

	if res.err != nil && !errors.Is(res.err, io.EOF) {
		f.logger.Warn("operator input ended", "error", fmt.Errorf("%w: %w", ErrInput, res.err))
	} else {
		f.logger.Debug("operator input ended")
	}
	f.closeStdin(stdin)
	return nil
}

func (f *Forwarder) closeStdin(stdin io.WriteCloser) {
	if err := stdin.Close(); err != nil {
		f.logger.Debug("failed to close process stdin", "error", err)
	}
}
