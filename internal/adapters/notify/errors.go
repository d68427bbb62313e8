package notify

import "errors"

// Sentinel kinds for notifier errors.
var (
	ErrEncode = errors.New("encode payload failed")
	ErrClosed = errors.New("notifier closed")
)
