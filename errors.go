package vigil

import "errors"

// Sentinel errors
var (
	ErrAlreadyRunning = errors.New("vigil: supervisor already running")
	ErrNilClient      = errors.New("vigil: bot client required")
	ErrNilRegistry    = errors.New("vigil: handler registry required")
)
