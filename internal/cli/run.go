package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cruciblehq/cruxrun/internal/console"
	"github.com/cruciblehq/cruxrun/internal/control"
	"github.com/cruciblehq/cruxrun/internal/metrics"
	"github.com/cruciblehq/cruxrun/internal/paths"
	"github.com/cruciblehq/cruxrun/internal/runtime"
	"github.com/cruciblehq/cruxrun/internal/session"
)

// Represents the 'cruxrun run' command.
type RunCmd struct {
	Image           string        `arg:"" help:"Image reference to run."`
	Args            []string      `arg:"" passthrough:"" help:"Command and arguments to run inside the container."`
	ID              string        `help:"Session identifier. Default is a random UUID."`
	Env             []string      `short:"e" help:"Set an environment variable inside the container." placeholder:"KEY=VALUE"`
	Workdir         string        `short:"w" help:"Working directory inside the container." placeholder:"DIR"`
	HyperV          bool          `name:"hyperv" help:"Run the container under a VM-isolated runtime." env:"CRUXRUN_HYPERV"`
	CPUs            float64       `name:"cpus" help:"Limit the container to this many CPUs. Zero is unlimited." env:"CRUXRUN_CPUS"`
	Netns           string        `help:"Network namespace name or path to join. Default is the host network." env:"CRUXRUN_NETNS" placeholder:"NAME"`
	Pull            bool          `help:"Pull the image if it is not present." env:"CRUXRUN_PULL"`
	Platform        string        `help:"Image platform. Default is the host platform." env:"CRUXRUN_PLATFORM" placeholder:"OS/ARCH"`
	InputMode       string        `help:"How console input waits for process exit." default:"${inputMode}" enum:"select,poll" env:"CRUXRUN_INPUT_MODE"`
	PollInterval    time.Duration `help:"Sleep between iterations in poll mode." default:"100ms" env:"CRUXRUN_POLL_INTERVAL"`
	ShutdownTimeout time.Duration `help:"Grace period for container shutdown. Zero waits indefinitely." default:"0s" env:"CRUXRUN_SHUTDOWN_TIMEOUT"`
	MetricsAddr     string        `help:"Serve Prometheus metrics on this address." env:"CRUXRUN_METRICS_ADDR" placeholder:"HOST:PORT"`
	SandboxRoot     string        `help:"Directory under which sandboxes are created." env:"CRUXRUN_SANDBOX_ROOT" placeholder:"DIR"`
}

// Executes the run command.
//
// Connects to containerd, runs the session to completion and reports the
// process exit code. A non-zero code is returned as an [ExitError]. The
// session can be stopped with SIGINT, SIGTERM or 'cruxrun stop'.
func (c *RunCmd) Run(ctx context.Context) error {
	mode, err := console.ParseMode(c.InputMode)
	if err != nil {
		return err
	}

	if c.ID != "" {
		if err := checkSessionFree(ctx, paths.SessionSocket(c.ID)); err != nil {
			return err
		}
	}

	sandboxRoot := c.SandboxRoot
	if sandboxRoot == "" {
		sandboxRoot = paths.Sandboxes()
	}
	if err := os.MkdirAll(sandboxRoot, 0700); err != nil {
		return err
	}

	rt, err := runtime.New(runtime.Config{
		Address:     RootCmd.Address,
		Namespace:   RootCmd.Namespace,
		Snapshotter: RootCmd.Snapshotter,
		Platform:    c.Platform,
		StateDir:    paths.State(),
		Pull:        c.Pull,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	m := metrics.New()
	if c.MetricsAddr != "" {
		stop, err := m.Serve(c.MetricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl, err := session.New(session.Config{
		ID:              c.ID,
		Image:           c.Image,
		Args:            c.Args,
		Env:             c.Env,
		Workdir:         c.Workdir,
		HyperV:          c.HyperV,
		CPUs:            c.CPUs,
		SandboxRoot:     sandboxRoot,
		Network:         runtime.NewNetworkResolver(c.Netns),
		Images:          rt,
		Storage:         rt,
		Runtime:         rt,
		Input:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Mode:            mode,
		PollInterval:    c.PollInterval,
		ShutdownTimeout: c.ShutdownTimeout,
		Logger:          slog.Default(),
		Metrics:         m,
	})
	if err != nil {
		return err
	}

	srv := startControl(ctrl, cancel)
	if srv != nil {
		defer srv.Close()
	}

	code, err := ctrl.Run(ctx)
	return exitStatus(code, err)
}

// Fails if a session already answers on socket.
func checkSessionFree(ctx context.Context, socket string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := control.Status(ctx, socket)
	if err != nil {
		return nil
	}
	return fmt.Errorf("%w: session %s is %s", control.ErrInUse, res.ID, res.State)
}

// Starts the session's control socket. A failure only disables remote
// control.
func startControl(ctrl *session.Controller, stop func()) *control.Server {
	srv, err := control.New(control.Config{
		SocketPath: paths.SessionSocket(ctrl.ID()),
		Session:    ctrl,
		Stop:       stop,
		Logger:     slog.Default(),
	})
	if err == nil {
		err = srv.Start()
	}
	if err != nil {
		slog.Warn("control socket unavailable", "error", err)
		return nil
	}
	return srv
}

// Maps a session result to the command's error.
//
// Failures before the process ran are returned as is. Release failures after
// the process exited are logged and do not replace its exit code.
func exitStatus(code int, err error) error {
	if err != nil {
		if code < 0 {
			return err
		}
		slog.Warn("session cleanup incomplete", "error", err)
	}

	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
