package exception

import "errors"

// Distribution server errors
var (
	ErrDistNilServer        = errors.New("dist: nil server")
	ErrDistAlreadyListening = errors.New("dist: already listening")
	ErrDistNotListening     = errors.New("dist: not listening")
	ErrDistConnLimit        = errors.New("dist: connection limit reached")
	ErrDistSessionClosed    = errors.New("dist: session closed")
)
