package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cruciblehq/cruxrun/internal/console"
	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/cruciblehq/cruxrun/internal/metrics"
	"github.com/cruciblehq/cruxrun/internal/stream"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// How long the release chain waits for each output pump to drain.
const DefaultPumpJoinTimeout = 5 * time.Second

// Holds session configuration.
type Config struct {
	ID          string   // Session identifier. Empty generates a random UUID.
	Image       string   // Image reference to run.
	Args        []string // Command and arguments to run inside the container.
	Env         []string // Extra environment entries ("KEY=value").
	Workdir     string   // Working directory inside the container.
	HyperV      bool     // Run the container under a VM-isolated runtime.
	CPUs        float64  // CPU cap for the container. Zero or less is unlimited.
	SandboxRoot string   // Directory under which the session's sandbox is created.

	Network host.NetworkResolver // Resolves the network the container joins.
	Images  host.ImageClient     // Locates the image's layer chain.
	Storage host.Storage         // Creates and destroys the sandbox.
	Runtime host.Runtime         // Creates the container.

	Input        io.Reader     // Operator input. Nil closes the process stdin immediately.
	Stdout       io.Writer     // Receives process stdout lines. Nil discards them.
	Stderr       io.Writer     // Receives process stderr lines. Nil discards them.
	Mode         console.Mode  // How the forwarder waits for process exit.
	PollInterval time.Duration // Forwarder poll interval in console.ModePoll.

	PumpJoinTimeout time.Duration // Wait per pump during release. Zero uses DefaultPumpJoinTimeout.
	ShutdownTimeout time.Duration // Container shutdown grace period. Zero or less waits indefinitely.

	Logger  *slog.Logger     // Nil uses slog.Default().
	Metrics *metrics.Metrics // Optional counters.
}

// Snapshot of a session for status reporting.
type Info struct {
	ID        string    // Session identifier.
	Image     string    // Image reference.
	Args      []string  // Command being run.
	State     State     // Current lifecycle state.
	StartedAt time.Time // When Run was called. Zero before that.
}

// Runs a single session.
type Controller struct {
	cfg       Config
	id        string
	logger    *slog.Logger
	state     atomic.Int32
	mu        sync.Mutex
	startedAt time.Time
}

// Creates a controller for cfg.
//
// All four host collaborators, an image and a command are required.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Network == nil, cfg.Images == nil, cfg.Storage == nil, cfg.Runtime == nil:
		return nil, fmt.Errorf("%w: missing host collaborator", ErrConfig)
	case cfg.Image == "":
		return nil, fmt.Errorf("%w: image is required", ErrConfig)
	case len(cfg.Args) == 0:
		return nil, fmt.Errorf("%w: command is required", ErrConfig)
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	if cfg.PumpJoinTimeout <= 0 {
		cfg.PumpJoinTimeout = DefaultPumpJoinTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		cfg:    cfg,
		id:     id,
		logger: logger.With("session", id),
	}, nil
}

// Returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Returns the current lifecycle state. Safe for concurrent use.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Returns a snapshot of the session. Safe for concurrent use.
func (c *Controller) Info() Info {
	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()

	return Info{
		ID:        c.id,
		Image:     c.cfg.Image,
		Args:      c.cfg.Args,
		State:     c.State(),
		StartedAt: startedAt,
	}
}

// Runs the session until the process exits and everything is released.
//
// Returns the process exit code. Pre-session and creation failures return -1
// with an error; release failures are appended to the returned error without
// replacing the exit code. Cancelling ctx interrupts the forwarder but never
// the release chain.
func (c *Controller) Run(ctx context.Context) (code int, err error) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()

	var teardownStart time.Time
	defer func() {
		c.setState(TornDown)
		c.record(err, teardownStart)
	}()

	network, parent, err := c.resolve(ctx)
	if err != nil {
		return -1, err
	}

	release := context.WithoutCancel(ctx)

	// Sandbox.
	sandboxPath := filepath.Join(c.cfg.SandboxRoot, c.id)
	layers := []host.Layer{{ID: c.id, Path: parent}}
	// A failed create leaves nothing behind. The path may hold the sandbox of
	// a live session with the same ID.
	if err := c.cfg.Storage.CreateSandbox(ctx, sandboxPath, layers); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrSandbox, err)
	}
	c.logger.Info("created sandbox", "path", sandboxPath)
	c.setState(SandboxReady)
	defer c.destroySandbox(release, sandboxPath)

	// Container.
	ctr, err := c.cfg.Runtime.CreateContainer(ctx, c.id, host.ContainerSettings{
		Image:       c.cfg.Image,
		Layers:      layers,
		SandboxPath: sandboxPath,
		NetworkID:   network,
		HyperV:      c.cfg.HyperV,
		CPUs:        c.cfg.CPUs,
		KillOnClose: true,
	})
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrContainer, err)
	}
	defer func() {
		err = multierr.Append(err, c.shutdownContainer(release, ctr))
	}()
	if err := ctr.Start(ctx); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrContainer, err)
	}
	c.setState(ContainerRunning)

	// Process.
	c.logger.Info("executing command", "args", c.cfg.Args)
	proc, err := ctr.CreateProcess(ctx, host.ProcessSettings{
		Args:           c.cfg.Args,
		Env:            c.cfg.Env,
		Workdir:        c.cfg.Workdir,
		RedirectStdin:  true,
		RedirectStdout: true,
		RedirectStderr: true,
		KillOnClose:    true,
	})
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrProcess, err)
	}
	pumps := c.startPumps(proc)
	defer func() {
		err = multierr.Append(err, c.releaseProcess(proc, pumps))
	}()
	c.setState(ProcessAttached)

	// Registered last so it runs first, marking where release begins.
	defer func() { teardownStart = time.Now() }()

	forwarder := console.New(console.Config{
		Input:        c.cfg.Input,
		Mode:         c.cfg.Mode,
		PollInterval: c.cfg.PollInterval,
		Logger:       c.logger,
	})

	c.setState(Draining)
	code, err = forwarder.Run(ctx, proc)
	if err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return -1, err
	}

	c.logger.Info("process exited", "code", code)
	return code, nil
}

// Resolves the network and the image's parent layer. Nothing is created.
func (c *Controller) resolve(ctx context.Context) (host.NetworkID, string, error) {
	network, err := c.cfg.Network.FindDefaultNetwork(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	c.logger.Info("found network", "network", string(network))

	info, err := c.cfg.Images.InspectImage(ctx, c.cfg.Image)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrImage, err)
	}

	chain, err := host.ReadLayerChain(info.GraphDir)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrImage, c.cfg.Image, err)
	}

	parent, err := host.ParentLayer(chain)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrImage, c.cfg.Image, err)
	}

	c.logger.Debug("resolved parent layer", "image", c.cfg.Image, "parent", parent, "depth", len(chain))
	return network, parent, nil
}

// Starts one pump per redirected output stream, echoing to the configured
// writers.
func (c *Controller) startPumps(proc host.Process) []*stream.Pump {
	var recorder stream.Recorder
	if c.cfg.Metrics != nil {
		recorder = c.cfg.Metrics
	}

	sink := stream.NewSink(stream.SinkOptions{Logger: c.logger, Recorder: recorder})
	stream.Echo(sink, c.cfg.Stdout, c.cfg.Stderr)

	sources := []struct {
		kind stream.Kind
		src  io.Reader
	}{
		{stream.Stdout, proc.Stdout()},
		{stream.Stderr, proc.Stderr()},
	}

	var pumps []*stream.Pump
	for _, s := range sources {
		if s.src == nil {
			continue
		}
		p, err := stream.StartPump(s.kind, s.src, sink, stream.PumpOptions{Logger: c.logger, Recorder: recorder})
		if err != nil {
			c.logger.Warn("failed to start pump", "stream", s.kind.String(), "error", err)
			continue
		}
		pumps = append(pumps, p)
	}
	return pumps
}

// Closes the process and joins the pumps.
//
// When the process has already exited its streams are at or near their end,
// so the pumps are joined first and all output reaches the console. Otherwise
// the process is closed first, which ends the pumps' reads.
func (c *Controller) releaseProcess(proc host.Process, pumps []*stream.Pump) error {
	if console.QueryExit(proc).Status == console.Exited {
		c.joinPumps(pumps)
	}

	var err error
	if closeErr := proc.Close(); closeErr != nil {
		err = fmt.Errorf("%w: %w", ErrRelease, closeErr)
		c.logger.Warn("failed to release process", "error", closeErr)
	}

	if !c.joinPumps(pumps) {
		c.logger.Warn("abandoning output pumps that did not stop")
	}
	return err
}

// Waits for every pump, each up to the configured timeout, and reports
// whether all of them stopped.
func (c *Controller) joinPumps(pumps []*stream.Pump) bool {
	stopped := true
	for _, p := range pumps {
		if !p.Wait(c.cfg.PumpJoinTimeout) {
			c.logger.Debug("pump still running", "stream", p.Kind().String())
			stopped = false
		}
	}
	return stopped
}

// Shuts the container down with the configured grace period.
func (c *Controller) shutdownContainer(ctx context.Context, ctr host.Container) error {
	if err := ctr.Shutdown(ctx, c.cfg.ShutdownTimeout); err != nil {
		c.logger.Warn("failed to shut down container", "error", err)
		return fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	c.logger.Info("container shut down", "id", c.id)
	return nil
}

// Destroys the sandbox. Failures are logged by the storage manager.
func (c *Controller) destroySandbox(ctx context.Context, path string) {
	c.cfg.Storage.DestroySandbox(ctx, path)
	c.logger.Info("sandbox removed", "path", path)
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("session state changed", "state", s.String())
}

// Counts the session outcome and teardown duration.
func (c *Controller) record(err error, teardownStart time.Time) {
	m := c.cfg.Metrics
	if m == nil {
		return
	}

	if !teardownStart.IsZero() {
		m.TeardownObserved(time.Since(teardownStart))
	}

	switch {
	case err == nil:
		m.SessionFinished(metrics.OutcomeExited)
	case errors.Is(err, ErrInterrupted):
		m.SessionFinished(metrics.OutcomeInterrupted)
	default:
		m.SessionFinished(metrics.OutcomeFailed)
	}
}
