package bot

import "errors"

var (
	// ErrSessionUnavailable means no frame or game session could be obtained this tick.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrAlreadyRunning is returned by Start on a running loop.
	ErrAlreadyRunning = errors.New("bot already running")
	// ErrNotRunning is returned by Stop on a stopped loop.
	ErrNotRunning = errors.New("bot not running")
)
