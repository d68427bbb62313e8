package model

import "errors"

// Sentinel kinds shared across the pipeline.
var (
	// ErrMalformedInput marks a metrics bundle that had to be replaced by
	// defaults. It is informational and never fails a frame.
	ErrMalformedInput = errors.New("malformed metrics input")
	// ErrInvalidFrame is returned for frames missing subject or session ids.
	ErrInvalidFrame = errors.New("invalid frame")
)
