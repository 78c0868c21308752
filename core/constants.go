package core

import "errors"

// Error definitions
var (
	ErrStaticMounted = errors.New("static directory already mounted")
	ErrEngineRunning = errors.New("engine already serving")
	ErrEngineClosed  = errors.New("engine shut down")
)
