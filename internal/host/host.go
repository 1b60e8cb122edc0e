package host

import (
	"context"
	"io"
	"time"
)

// Identifies the network a container joins.
//
// The value is interpreted by the [Runtime] implementation; the containerd
// runtime accepts "host" or the path of a network namespace.
type NetworkID string

// Locates the network new containers should join.
type NetworkResolver interface {

	// Returns the default network, or an error wrapping [ErrNetworkNotFound].
	FindDefaultNetwork(ctx context.Context) (NetworkID, error)
}

// Result of inspecting an image.
type ImageInfo struct {
	Name     string // Image reference as requested.
	GraphDir string // Directory holding the image's layerchain.json.
}

// Looks up local images.
type ImageClient interface {

	// Returns the graph directory of the named image, or an error wrapping
	// [ErrImageNotFound].
	InspectImage(ctx context.Context, name string) (ImageInfo, error)
}

// A storage layer referenced by a sandbox.
type Layer struct {
	ID   string // Identifier of the layer owner, usually the session ID.
	Path string // Location of the read-only parent layer.
}

// Creates and destroys writable sandbox layers.
type Storage interface {

	// Creates a sandbox at path on top of layers. A failed create leaves
	// nothing behind and never touches a sandbox already at path.
	CreateSandbox(ctx context.Context, path string, layers []Layer) error

	// Removes the sandbox at path. Destroying a missing sandbox is not an
	// error; failures are logged rather than returned.
	DestroySandbox(ctx context.Context, path string)
}

// Describes the container to create.
type ContainerSettings struct {
	Image       string    // Image the container's configuration is taken from.
	Layers      []Layer   // Layers the sandbox was created on.
	SandboxPath string    // Path passed to [Storage.CreateSandbox].
	NetworkID   NetworkID // Network to join.
	HyperV      bool      // Run under a VM-isolated runtime.
	KillOnClose bool      // Kill the container if it does not stop within the shutdown grace period.
	CPUs        float64   // Hard cap on CPU time, in CPUs. Zero or less is unlimited.
}

// Creates containers.
type Runtime interface {
	CreateContainer(ctx context.Context, id string, settings ContainerSettings) (Container, error)
}

// Describes a process to start inside a container.
type ProcessSettings struct {
	Args           []string // Command and arguments.
	Env            []string // Extra environment entries ("KEY=value").
	Workdir        string   // Working directory. Empty keeps the image default.
	RedirectStdin  bool     // Expose the process's standard input.
	RedirectStdout bool     // Expose the process's standard output.
	RedirectStderr bool     // Expose the process's standard error.
	KillOnClose    bool     // Kill the process if it is still running when closed.
}

// A created container.
type Container interface {

	// Starts the container.
	Start(ctx context.Context) error

	// Starts a process inside the running container.
	CreateProcess(ctx context.Context, settings ProcessSettings) (Process, error)

	// Stops the container and releases its runtime resources, waiting up to
	// timeout for it to exit. A non-positive timeout waits indefinitely.
	Shutdown(ctx context.Context, timeout time.Duration) error
}

// A process running inside a container.
type Process interface {

	// Returns the process's standard input, or nil if it was not redirected.
	Stdin() io.WriteCloser

	// Returns the process's standard output, or nil if it was not redirected.
	Stdout() io.Reader

	// Returns the process's standard error, or nil if it was not redirected.
	Stderr() io.Reader

	// Returns the exit code once the process has exited. While it is still
	// running the error wraps [ErrProcessRunning].
	ExitCode() (int, error)

	// Returns a channel closed when the process exits.
	Exited() <-chan struct{}

	// Releases the process. Its output sources are closed, ending any reads
	// in progress.
	Close() error
}
