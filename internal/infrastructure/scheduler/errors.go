package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when a schedule or retention setting is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobNotFound is returned when RunNow names an unregistered job
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyRunning is returned when RunNow overlaps a running instance of the job
	ErrJobAlreadyRunning = errors.New("job already running")
)
