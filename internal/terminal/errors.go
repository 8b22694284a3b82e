package terminal

import "errors"

// Sentinel errors for the terminal package.
var (
	// ErrInvalidSize is returned when a resize request is not positive.
	ErrInvalidSize = errors.New("invalid terminal size")
)
