package coordinator

import "errors"

var (
	ErrAlreadyRunning = errors.New("coordinator is already running")
	ErrNotRunning     = errors.New("coordinator is not running")
	ErrSuperseded     = errors.New("action superseded by a newer request")
)
