package stream

import "errors"

var (
	ErrUnsupportedKind = errors.New("unsupported stream kind")
	ErrPump            = errors.New("stream pump failed")
	ErrHandler         = errors.New("line handler failed")
)
