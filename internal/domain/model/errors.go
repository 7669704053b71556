package model

import "errors"

// Sentinel error kinds shared by every layer. Compare with errors.Is.
var (
	ErrInvalidParameterVector = errors.New("invalid parameter vector")
	ErrInvalidRetention       = errors.New("desired retention must be in (0, 1]")
	ErrInvalidEaseFactor      = errors.New("ease factor must be positive")
	ErrEmptyHistory           = errors.New("empty review history")
	ErrNoTrainableData        = errors.New("no trainable review data")
	ErrNumericalDivergence    = errors.New("numerical divergence")
	ErrInvalidInput           = errors.New("invalid input")
)
