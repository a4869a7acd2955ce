package scheduler

import "errors"

// Sentinel errors.
var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrUnknownJob      = errors.New("unknown job")
	ErrBusy            = errors.New("run already in progress")
	ErrDuplicateJob    = errors.New("job already registered")
)
