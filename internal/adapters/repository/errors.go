package repository

import "errors"

// Sentinel kinds for session store errors.
var (
	ErrNotFound       = errors.New("subject not found")
	ErrInvalidSubject = errors.New("subject id must not be empty")
)
