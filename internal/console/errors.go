package console

import "errors"

var (
	ErrExitStatusUnknown = errors.New("process exited with unknown status")
	ErrInput             = errors.New("operator input failed")
)
