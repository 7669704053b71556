package optimizer

import "errors"

// ErrInvalidConfig is returned when an option carries an unusable value.
var ErrInvalidConfig = errors.New("invalid optimizer configuration")
