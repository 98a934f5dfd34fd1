package core

import "errors"

// Sentinel errors returned by the supervisor and scheduler. Call sites wrap
// these with fmt.Errorf("%w: ...") to add context; callers compare with
// errors.Is against the sentinel.
var (
	ErrInvalidName      = errors.New("invalid job name")
	ErrDuplicateName    = errors.New("duplicate job name")
	ErrInvalidCron      = errors.New("invalid cron expression")
	ErrJobNotFound      = errors.New("job not found")
	ErrEmptyCommand     = errors.New("empty command")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)
