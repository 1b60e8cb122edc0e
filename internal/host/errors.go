package host

import "errors"

var (
	ErrNetworkNotFound     = errors.New("network not found")
	ErrImageNotFound       = errors.New("image not found")
	ErrLayerChainNotFound  = errors.New("layer chain not found")
	ErrLayerChainInvalid   = errors.New("layer chain is malformed")
	ErrParentLayerNotFound = errors.New("parent layer not found")
	ErrProcessRunning      = errors.New("process is still running")
)
