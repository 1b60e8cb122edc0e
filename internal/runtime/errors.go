package runtime

import "errors"

var (
	ErrRuntime         = errors.New("runtime error")
	ErrSandbox         = errors.New("sandbox error")
	ErrSandboxExists   = errors.New("sandbox already exists")
	ErrNoLayers        = errors.New("no parent layer given")
	ErrShutdownTimeout = errors.New("container did not stop within the grace period")
)
