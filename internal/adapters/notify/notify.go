// Package notify fans state changes out to every subscribed observer.
//
// A broadcast encodes the payload once, copies the connection set under a
// read lock and then sends to each connection concurrently, so a slow or
// broken observer never delays or blocks the others. Failed sends are
// logged and counted; membership only changes through Subscribe and
// Unsubscribe.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/okian/smartsession/pkg/metrics"
)

const defaultSendTimeout = 2 * time.Second

// Conn is one observer connection. Send must return once ctx is done.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Message is the envelope every observer receives.
type Message struct {
	Type model.UpdateKind `json:"type"`
	Data any              `json:"data"`
}

// Removal is the data of a subject_removed message.
type Removal struct {
	SubjectID string `json:"student_id"`
}

// Delivery summarizes one broadcast.
type Delivery struct {
	Attempted int
	Delivered int
	Failed    int
}

// Notifier holds the connection set.
type Notifier struct {
	mu          sync.RWMutex
	conns       map[string]Conn
	closed      bool
	sendTimeout time.Duration
	logger      logger.Logger
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		conns:       make(map[string]Conn),
		sendTimeout: defaultSendTimeout,
		logger:      logger.Get().Named("notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe adds conn to the set. Re-subscribing the same id replaces it.
func (n *Notifier) Subscribe(conn Conn) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.conns[conn.ID()] = conn
	count := len(n.conns)
	n.mu.Unlock()

	metrics.UpdateObservers(count)
	metrics.RecordObserverEvent("subscribe")
	return nil
}

// Unsubscribe removes conn. Removing an absent connection is a no-op.
func (n *Notifier) Unsubscribe(conn Conn) {
	n.mu.Lock()
	_, ok := n.conns[conn.ID()]
	delete(n.conns, conn.ID())
	count := len(n.conns)
	n.mu.Unlock()

	if ok {
		metrics.UpdateObservers(count)
		metrics.RecordObserverEvent("unsubscribe")
	}
}

// Count returns the number of subscribed connections.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

// Broadcast sends payload to every connection subscribed at call time.
func (n *Notifier) Broadcast(ctx context.Context, payload any) (Delivery, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	n.mu.RLock()
	targets := make([]Conn, 0, len(n.conns))
	for _, c := range n.conns {
		targets = append(targets, c)
	}
	n.mu.RUnlock()

	d := Delivery{Attempted: len(targets)}
	if len(targets) == 0 {
		return d, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := n.send(ctx, c, data); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	d.Failed = failed
	d.Delivered = d.Attempted - failed
	return d, nil
}

// SendTo pushes payload to a single connection, e.g. the roster on connect.
func (n *Notifier) SendTo(ctx context.Context, conn Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return n.send(ctx, conn, data)
}

func (n *Notifier) send(ctx context.Context, c Conn, data []byte) error {
	sctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	start := time.Now()
	err := c.Send(sctx, data)
	metrics.RecordDeliveryLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordDeliveryFailure()
		n.logger.Warn(ctx, "push to observer failed",
			logger.String("conn_id", c.ID()),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// Publish wraps an update in its envelope and broadcasts it.
func (n *Notifier) Publish(ctx context.Context, u model.Update) error { //nolint:gocritic // hugeParam: Update is passed by value through the queue
	msg := Message{Type: u.Kind, Data: u.State}
	if u.Kind == model.UpdateRemoved {
		msg.Data = Removal{SubjectID: u.State.SubjectID}
	}

	d, err := n.Broadcast(ctx, msg)
	if err != nil {
		return err
	}
	metrics.RecordBroadcast(string(u.Kind))
	if d.Failed > 0 {
		n.logger.Debug(ctx, "broadcast partially delivered",
			logger.String("subject_id", u.State.SubjectID),
			logger.Int("delivered", d.Delivered),
			logger.Int("failed", d.Failed),
		)
	}
	return nil
}

// Close closes and forgets every connection. Later Subscribe calls fail.
func (n *Notifier) Close() error {
	n.mu.Lock()
	conns := n.conns
	n.conns = make(map[string]Conn)
	n.closed = true
	n.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			n.logger.Debug(context.Background(), "close observer", logger.String("conn_id", c.ID()), logger.Error(err))
		}
	}
	metrics.UpdateObservers(0)
	return nil
}
