// Package worker drains the update queue and hands each update to the
// notifier. The pool routes every subject to one dispatcher, so updates for a
// subject are published in enqueue order; different subjects run in parallel.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/okian/smartsession/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
	defaultPublishTimeout = 5 * time.Second
	laneBuffer            = 64
)

// Update abstracts what dispatchers read off the queue.
type Update = model.Update

// Publisher pushes one update to every observer.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Queue defines how dispatchers receive updates.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Update
}

// Dispatcher moves updates from the queue to the publisher.
type Dispatcher struct {
	queue          Queue
	publisher      Publisher
	name           string
	publishTimeout time.Duration
	processed      *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(q Queue, p Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          q,
		publisher:      p,
		name:           "dispatcher",
		publishTimeout: defaultPublishTimeout,
		processed:      &atomic.Int64{},
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		logger:         logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name != "dispatcher" {
		d.logger = d.logger.Named(d.name)
	}
	return d
}

// Run drains the queue until it is closed, ctx is done, or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	updates := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := d.dispatch(ctx, u); err != nil {
				d.logger.Error(ctx, "dispatch failed",
					logger.String("subject_id", u.State.SubjectID),
					logger.String("kind", string(u.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Stop makes Run return without draining.
func (d *Dispatcher) Stop() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) dispatch(ctx context.Context, u Update) error { //nolint:gocritic // hugeParam: Update is received by value from the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	pctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pctx, u); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "publish_error")
		return fmt.Errorf("publish %s for %s: %w", u.Kind, u.State.SubjectID, err)
	}
	d.processed.Add(1)
	return nil
}

// lane is one dispatcher's private feed.
type lane chan Update

func (l lane) Dequeue(context.Context) <-chan Update { return l }

// Pool manages a set of dispatchers fed from one queue. A router reads the
// queue and hands each update to the lane picked by its subject id.
type Pool struct {
	dispatchers []*Dispatcher
	lanes       []lane
	queue       Queue

	processed         atomic.Int64
	lastProcessedTime time.Time

	stopRoute   chan struct{}
	routeOnce   sync.Once
	stopMetrics chan struct{}
	stopOnce    sync.Once
	metricsDone chan struct{}

	logger logger.Logger
}

// NewPool creates a pool of count dispatchers. count < 1 means one per CPU.
func NewPool(count int, q Queue, p Publisher, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}

	pool := &Pool{
		dispatchers:       make([]*Dispatcher, count),
		lanes:             make([]lane, count),
		queue:             q,
		lastProcessedTime: time.Now(),
		stopRoute:         make(chan struct{}),
		stopMetrics:       make(chan struct{}),
		metricsDone:       make(chan struct{}),
		logger:            logger.Get().Named("dispatch-pool"),
	}

	for i := 0; i < count; i++ {
		pool.lanes[i] = make(lane, laneBuffer)
		o := append([]Option{WithName("dispatcher-" + strconv.Itoa(i))}, opts...)
		d := NewDispatcher(pool.lanes[i], p, o...)
		d.processed = &pool.processed
		pool.dispatchers[i] = d
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return pool
}

// laneFor picks the dispatcher that owns subjectID.
func (p *Pool) laneFor(subjectID string) lane {
	return p.lanes[xxhash.Sum64String(subjectID)%uint64(len(p.lanes))]
}

// route forwards queued updates to their lanes and closes every lane once the
// queue is drained, which lets the dispatchers finish and return.
func (p *Pool) route(ctx context.Context) {
	defer func() {
		for _, l := range p.lanes {
			close(l)
		}
	}()

	updates := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopRoute:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			select {
			case p.laneFor(u.State.SubjectID) <- u:
			case <-ctx.Done():
				return
			case <-p.stopRoute:
				return
			}
		}
	}
}

// Size returns the number of dispatchers.
func (p *Pool) Size() int { return len(p.dispatchers) }

// Processed returns how many updates were published successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start runs every dispatcher.
func (p *Pool) Start(ctx context.Context) {
	for _, d := range p.dispatchers {
		go d.Run(ctx)
	}
	go p.route(ctx)
	metrics.UpdateWorkerActiveCount(len(p.dispatchers))
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	defer close(p.metricsDone)
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopMetrics:
			return
		case <-ticker.C:
			now := time.Now()
			current := p.processed.Load()
			if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(current-last) / elapsed)
			}
			last = current
			p.lastProcessedTime = now
		}
	}
}

// Shutdown closes the queue and waits for dispatchers to drain their lanes.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, d := range p.dispatchers {
		select {
		case <-d.Done():
		case <-shutdownCtx.Done():
			timedOut = true
			p.routeOnce.Do(func() { close(p.stopRoute) })
			d.Stop()
			p.logger.Warn(ctx, "dispatcher shutdown timed out", logger.Int("dispatcher_id", i))
		}
	}

	p.stopOnce.Do(func() { close(p.stopMetrics) })
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("dispatch pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
