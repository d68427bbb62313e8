// Package ws carries observer subscriptions over websocket.
//
// Each connection gets a buffered send channel drained by a single writer
// goroutine, which also sends pings. The read loop only exists to notice the
// peer going away and to extend the read deadline on pong.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okian/smartsession/internal/adapters/notify"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/okian/smartsession/pkg/metrics"
)

const (
	writeWait         = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 64
	maxMessageSize    = 4096
)

// Subscriber registers observer connections.
type Subscriber interface {
	Subscribe(ctx context.Context, conn notify.Conn) error
	Unsubscribe(conn notify.Conn)
}

// Handler upgrades GET requests and keeps the connection subscribed until
// the peer goes away.
type Handler struct {
	subs       Subscriber
	upgrader   websocket.Upgrader
	origins    []string
	sendBuffer int
	pongWait   time.Duration
	logger     logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(subs Subscriber, opts ...Option) *Handler {
	h := &Handler{
		subs:       subs,
		origins:    []string{"*"},
		sendBuffer: defaultSendBuffer,
		pongWait:   defaultPongWait,
		logger:     logger.Get().Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return AllowOrigin(h.origins, r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		metrics.RecordObserverEvent("upgrade_failed")
		h.logger.Warn(ctx, "websocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.Error(err),
		)
		return
	}

	c := newClient(wsConn, h.sendBuffer, h.pongWait)
	go c.writePump()

	if err := h.subs.Subscribe(ctx, c); err != nil {
		h.logger.Warn(ctx, "observer subscribe failed", logger.String("conn_id", c.id), logger.Error(err))
		_ = c.Close()
		return
	}
	metrics.RecordObserverEvent("connect")
	h.logger.Info(ctx, "observer connected",
		logger.String("conn_id", c.id),
		logger.String("remote", r.RemoteAddr),
	)

	c.readPump()

	_ = c.Close()
	h.subs.Unsubscribe(c)
	metrics.RecordObserverEvent("disconnect")
	h.logger.Info(ctx, "observer disconnected", logger.String("conn_id", c.id))
}

// AllowOrigin reports whether origin is in allowed. An empty origin (a
// non-browser client) is always accepted.
func AllowOrigin(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// client adapts a websocket connection to notify.Conn.
type client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	pongWait time.Duration
}

func newClient(conn *websocket.Conn, buffer int, pongWait time.Duration) *client {
	return &client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		pongWait: pongWait,
	}
}

func (c *client) ID() string { return c.id }

// Send queues payload for the writer. It gives up when ctx is done, so a
// peer that stops reading only ever costs the caller its send timeout.
func (c *client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is idempotent. The send channel is never closed; done signals the writer.
func (c *client) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// readPump discards inbound messages and returns when the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
