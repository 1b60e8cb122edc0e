package session

import "errors"

var (
	ErrConfig      = errors.New("invalid session configuration")
	ErrNetwork     = errors.New("network resolution failed")
	ErrImage       = errors.New("image resolution failed")
	ErrSandbox     = errors.New("sandbox creation failed")
	ErrContainer   = errors.New("container creation failed")
	ErrProcess     = errors.New("process creation failed")
	ErrShutdown    = errors.New("container shutdown failed")
	ErrRelease     = errors.New("process release failed")
	ErrInterrupted = errors.New("session interrupted")
)
