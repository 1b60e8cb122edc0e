package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/cruxrun/internal/host"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// How long Close waits for a killed process to report its exit.
const killGrace = 5 * time.Second

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// A session process running as an exec inside a [Container].
//
// Redirected output is bridged through in-memory pipes: containerd's copy
// loops write into them and the session's pumps read from them. The pipes are
// closed once the process has exited and containerd has flushed its IO, so
// pumps see EOF only after the last byte.
type Process struct {
	proc        containerd.Process // Containerd exec process.
	ctx         context.Context    // Detached context for calls after creation.
	killOnClose bool               // Kill the process if it is still running on Close.

	stdin  *stdinPipe     // Nil when stdin is not redirected.
	stdout *io.PipeReader // Nil when stdout is not redirected.
	stderr *io.PipeReader // Nil when stderr is not redirected.
	outW   *io.PipeWriter // Write end of stdout, closed after exit.
	errW   *io.PipeWriter // Write end of stderr, closed after exit.
	exited chan struct{}  // Closed once the exit status is stored.

	mu   sync.Mutex
	code int   // Exit code, valid once exited is closed.
	err  error // Error reported with the exit status.

	closeOnce sync.Once
	closeErr  error
}

// Starts a process inside the container's running task.
//
// The process is attached to the task as an additional exec. Environment
// entries and the working directory override the container's OCI spec for
// this process only.
func (c *Container) CreateProcess(ctx context.Context, settings host.ProcessSettings) (host.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	pspec, err := buildProcessSpec(ctx, ctr, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	p := &Process{
		ctx:         context.WithoutCancel(ctx),
		killOnClose: settings.KillOnClose,
		exited:      make(chan struct{}),
	}

	var (
		stdin          io.Reader
		stdout, stderr io.Writer = io.Discard, io.Discard
	)
	if settings.RedirectStdin {
		p.stdin = newStdinPipe()
		stdin = p.stdin
	}
	if settings.RedirectStdout {
		p.stdout, p.outW = io.Pipe()
		stdout = p.outW
	}
	if settings.RedirectStderr {
		p.stderr, p.errW = io.Pipe()
		stderr = p.errW
	}

	proc, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		p.closePipes()
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	p.proc = proc

	// Wait must be registered before Start so a fast exit is not missed.
	statusC, err := proc.Wait(p.ctx)
	if err != nil {
		proc.Delete(p.ctx)
		p.closePipes()
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := proc.Start(ctx); err != nil {
		proc.Delete(p.ctx)
		p.closePipes()
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	go p.watch(statusC)
	if p.stdin != nil {
		go p.closeStdinOnEOF()
	}

	slog.Debug("process started", "container", c.id, "exec", proc.ID(), "args", settings.Args)
	return p, nil
}

// Returns the operator end of stdin, or nil if stdin was not redirected.
func (p *Process) Stdin() io.WriteCloser {
	if p.stdin == nil {
		return nil
	}
	return p.stdin.Writer()
}

// Returns the process's standard output, or nil if it was not redirected.
func (p *Process) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Returns the process's standard error, or nil if it was not redirected.
func (p *Process) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

// Returns a channel closed when the process exits.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Returns the exit code, or an error wrapping [host.ErrProcessRunning] while
// the process is still running.
func (p *Process) ExitCode() (int, error) {
	select {
	case <-p.exited:
	default:
		return -1, host.ErrProcessRunning
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return -1, fmt.Errorf("%w: %w", ErrRuntime, p.err)
	}
	return p.code, nil
}

// Releases the process.
//
// A process still running is killed first when it was created with
// KillOnClose. All pipes are closed, ending reads in progress, and the exec is
// deleted from the task. Subsequent calls return the first result.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.close()
	})
	return p.closeErr
}

func (p *Process) close() error {
	select {
	case <-p.exited:
	default:
		if p.killOnClose {
			if err := p.proc.Kill(p.ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
				slog.Debug("failed to kill process", "exec", p.proc.ID(), "error", err)
			}
			select {
			case <-p.exited:
			case <-time.After(killGrace):
				slog.Warn("process did not exit after kill", "exec", p.proc.ID())
			}
		}
	}

	p.closePipes()

	if _, err := p.proc.Delete(p.ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Stores the exit status, then closes the output pipes once containerd has
// copied everything into them.
func (p *Process) watch(statusC <-chan containerd.ExitStatus) {
	status := <-statusC
	code, _, err := status.Result()

	p.mu.Lock()
	p.code = int(code)
	p.err = err
	p.mu.Unlock()
	close(p.exited)

	p.proc.IO().Wait()
	if p.outW != nil {
		p.outW.Close()
	}
	if p.errW != nil {
		p.errW.Close()
	}
}

// Closes the exec's stdin once operator input ended. The shim holds both ends
// of the stdin FIFO open, so the process sees EOF only through CloseIO.
func (p *Process) closeStdinOnEOF() {
	select {
	case <-p.stdin.Done():
		if err := p.proc.CloseIO(p.ctx, containerd.WithStdinCloser); err != nil && !errdefs.IsNotFound(err) {
			slog.Debug("failed to close process stdin", "exec", p.proc.ID(), "error", err)
		}
	case <-p.exited:
	}
}

// Closes every redirected pipe on both ends.
func (p *Process) closePipes() {
	if p.stdin != nil {
		p.stdin.Writer().Close()
		p.stdin.Close()
	}
	for _, r := range []*io.PipeReader{p.stdout, p.stderr} {
		if r != nil {
			r.Close()
		}
	}
	for _, w := range []*io.PipeWriter{p.outW, p.errW} {
		if w != nil {
			w.Close()
		}
	}
}

// Builds an OCI process spec for a session process.
//
// The base values are copied from the container's own OCI spec, then the
// arguments are replaced and env and workdir are overridden if provided.
func buildProcessSpec(ctx context.Context, ctr containerd.Container, settings host.ProcessSettings) (*specs.Process, error) {
	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = settings.Args

	if len(settings.Env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, settings.Env)
	}
	if settings.Workdir != "" {
		pspec.Cwd = settings.Workdir
	}

	return &pspec, nil
}

// Merges override env vars on top of a base env slice.
//
// Base order is kept; overridden keys stay in place and new keys are
// appended in the order given. Entries without "=" are dropped.
func mergeEnv(base, overrides []string) []string {
	index := make(map[string]int, len(base)+len(overrides))
	result := make([]string, 0, len(base)+len(overrides))

	add := func(entry string) {
		k, _, ok := strings.Cut(entry, "=")
		if !ok {
			return
		}
		if i, seen := index[k]; seen {
			result[i] = entry
			return
		}
		index[k] = len(result)
		result = append(result, entry)
	}

	for _, entry := range base {
		add(entry)
	}
	for _, entry := range overrides {
		add(entry)
	}
	return result
}
