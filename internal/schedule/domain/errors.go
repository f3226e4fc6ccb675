package schedule

import "errors"

var (
	// ErrInvalidTime indicates a malformed time of day.
	ErrInvalidTime = errors.New("schedule: invalid time of day")
	// ErrAlreadyRunning is returned by Start when the scheduler is not stopped.
	ErrAlreadyRunning = errors.New("schedule: already running")
)
