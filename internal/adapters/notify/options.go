package notify

import (
	"time"

	"github.com/okian/smartsession/pkg/logger"
)

// Option applies a configuration option to the Notifier.
type Option func(*Notifier)

// WithSendTimeout bounds a single push to one connection.
func WithSendTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.sendTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}
