package ws

import "errors"

// ErrConnClosed is returned by Send once the connection is gone.
var ErrConnClosed = errors.New("websocket connection closed")
