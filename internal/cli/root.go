package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/cruxrun/internal"
	"github.com/cruciblehq/cruxrun/internal/console"
	"github.com/cruciblehq/cruxrun/internal/paths"
	"github.com/cruciblehq/cruxrun/internal/runtime"
)

const (

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images, snapshots and containers.
	DefaultContainerdNamespace = "cruxrun"
)

// Represents the root command for cruxrun.
var RootCmd struct {
	Quiet       bool            `short:"q" help:"Suppress informational output." env:"CRUXRUN_QUIET"`
	Verbose     bool            `short:"v" help:"Enable verbose output." env:"CRUXRUN_VERBOSE"`
	Debug       bool            `short:"d" help:"Enable debug output." env:"CRUXRUN_DEBUG"`
	Config      kong.ConfigFlag `help:"Load defaults from a JSON configuration file." placeholder:"PATH"`
	Address     string          `help:"Containerd socket address." default:"${containerdAddress}" env:"CRUXRUN_ADDRESS" placeholder:"PATH"`
	Namespace   string          `help:"Containerd namespace." default:"${containerdNamespace}" env:"CRUXRUN_NAMESPACE"`
	Snapshotter string          `help:"Snapshotter holding image layers and sandboxes." default:"${snapshotter}" env:"CRUXRUN_SNAPSHOTTER"`
	Run         RunCmd          `cmd:"" help:"Run a command in a new container session."`
	Status      StatusCmd       `cmd:"" help:"Show running sessions."`
	Stop        StopCmd         `cmd:"" help:"Stop a running session."`
	Version     VersionCmd      `cmd:"" help:"Show version information."`
}

// Reports the exit code of the session's process.
//
// Returned by the run command when the process exited with a non-zero code,
// so the binary can exit with the same code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Runs a command inside a disposable container.\n\nThe command's output is echoed line by line and console input is forwarded to it until it exits. The container and its sandbox are removed afterwards."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, paths.ConfigFile()),
		vars(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger(os.Stderr)

	return kongCtx.Run()
}

// Returns the interpolation variables for flag defaults and help.
func vars() kong.Vars {
	return kong.Vars{
		"version":             internal.VersionString(),
		"containerdAddress":   DefaultContainerdAddress,
		"containerdNamespace": DefaultContainerdNamespace,
		"snapshotter":         runtime.DefaultSnapshotter,
		"inputMode":           console.ModeSelect.String(),
	}
}
