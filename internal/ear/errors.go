package ear

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid landmark input")
	ErrDegenerateGeometry = errors.New("degenerate eye geometry")
	ErrInvalidThreshold   = errors.New("invalid EAR threshold")
	ErrUnknownScheme      = errors.New("unknown landmark scheme")
)
