// Package session runs one interactive container session end to end.
//
// A [Controller] acquires resources top-down and releases them bottom-up:
//
//	Idle → SandboxReady → ContainerRunning → ProcessAttached → Draining → TornDown
//
// Before anything is created the default network and the image's parent
// layer are resolved; failures there abort the session with nothing to undo.
// A sandbox layer is then created on the parent layer, a container is created
// on the sandbox and started, and the command is started inside it with its
// standard streams redirected. One pump per output stream echoes lines to the
// local console while a console forwarder feeds operator input to the process
// until it exits.
//
// However the session ends, the release chain runs in order: the process is
// closed, the container is shut down (with no time limit by default), and the
// sandbox is destroyed. Every step runs even when an earlier one failed, and
// the sandbox is never destroyed before the container using it has shut down.
//
// Example usage:
//
//	ctl, err := session.New(session.Config{
//	    Image:   "docker.io/library/alpine:latest",
//	    Args:    []string{"/bin/sh"},
//	    Network: runtime.NewNetworkResolver(""),
//	    Images:  rt,
//	    Storage: rt,
//	    Runtime: rt,
//	    Input:   os.Stdin,
//	    Stdout:  os.Stdout,
//	    Stderr:  os.Stderr,
//	})
//	if err != nil {
//	    return err
//	}
//
//	code, err := ctl.Run(ctx)
package session
