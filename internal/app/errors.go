package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("backpressure")
	ErrJobNotFound  = errors.New("job not found")
	ErrStopped      = errors.New("service stopped before the job finished")
)
