package control

import "errors"

var (
	ErrServer   = errors.New("control server error")
	ErrProtocol = errors.New("control protocol error")
	ErrDial     = errors.New("session not reachable")
	ErrRemote   = errors.New("session returned an error")
	ErrInUse    = errors.New("control socket in use")
)
