package simulate

import "errors"

// Sentinel errors for the simulation tooling.
var (
	ErrInvalidConfig   = errors.New("invalid simulation config")
	ErrUnexpectedReply = errors.New("unexpected reply from service")
	ErrJobFailed       = errors.New("optimization job failed")
	ErrPollTimeout     = errors.New("timed out waiting for optimization job")
)
