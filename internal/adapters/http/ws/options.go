package ws

import (
	"time"

	"github.com/okian/smartsession/pkg/logger"
)

// Option configures a Handler.
type Option func(*Handler)

// WithAllowedOrigins sets the origins accepted on upgrade. "*" accepts any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.origins = append([]string(nil), origins...)
	}
}

// WithSendBuffer sets how many messages may wait for the writer per connection.
func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPongWait sets how long a silent peer is kept. Pings go out at 9/10 of it.
func WithPongWait(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}
