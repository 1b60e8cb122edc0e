package console

import (
	"errors"

	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/sourcegraph/conc/panics"
)

// Liveness of a process as observed by a single query.
type Status int

const (
	Running Status = iota // Process has not exited.
	Exited                // Process exited; the code is known.
	Unknown               // The query failed.
)

// Returns a lower-case name for the status.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Result of querying a process's exit code.
type ExitState struct {
	Status Status // Observed liveness.
	Code   int    // Exit code, meaningful only when Status is [Exited].
}

// Queries the exit state of p.
//
// Only a nil error with a non-negative code counts as exited. An error
// wrapping [host.ErrProcessRunning] means running; any other error, a panic
// during the query, or a negative code is [Unknown].
func QueryExit(p interface{ ExitCode() (int, error) }) ExitState {
	var (
		code int
		err  error
	)
	if r := panics.Try(func() { code, err = p.ExitCode() }); r != nil {
		return ExitState{Status: Unknown}
	}

	switch {
	case err == nil && code >= 0:
		return ExitState{Status: Exited, Code: code}
	case errors.Is(err, host.ErrProcessRunning):
		return ExitState{Status: Running}
	default:
		return ExitState{Status: Unknown}
	}
}
