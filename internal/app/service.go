// Package service wires the frame pipeline: it fuses each observation into a
// subject status, stores it and queues the change for observers.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	updatequeue "github.com/okian/smartsession/internal/adapters/mq/queue"
	dispatchpool "github.com/okian/smartsession/internal/adapters/mq/worker"
	"github.com/okian/smartsession/internal/adapters/notify"
	"github.com/okian/smartsession/internal/adapters/repository"
	"github.com/okian/smartsession/internal/domain/dedupe"
	"github.com/okian/smartsession/internal/domain/engagement"
	"github.com/okian/smartsession/internal/domain/integrity"
	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/internal/domain/perception"
	"github.com/okian/smartsession/internal/domain/resolver"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/okian/smartsession/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// FrameRequest is a frame whose observation still has to come from the provider.
type FrameRequest struct {
	SubjectID string
	SessionID string
	FrameID   string
	Payload   []byte
}

// Service implements the dependencies of the HTTP and websocket handlers.
type Service struct {
	mu sync.RWMutex

	// Domain
	classifier *engagement.Classifier
	monitor    *integrity.Monitor
	resolver   *resolver.Resolver
	provider   perception.Provider
	locks      *keyedLock

	// Adapters, created by Start
	store    *repository.ShardStore
	deduper  dedupe.Deduper
	updates  *updatequeue.InMemoryQueue
	pool     *dispatchpool.Pool
	notifier *notify.Notifier

	// Configuration
	shardCount      int
	queueSize       int
	dispatchWorkers int
	sendTimeout     time.Duration
	dedupeSize      int
	confusionWindow time.Duration
	gazeWindow      time.Duration
	thresholds      *[3]float64
	surfaceGazeAway bool
	offlineAfter    time.Duration
	subjectTTL      time.Duration
	sweepInterval   time.Duration
	now             func() time.Time

	// State
	started       bool
	cancel        context.CancelFunc
	cancelJanitor context.CancelFunc
	janitorDone   chan struct{}

	logger logger.Logger
}

// New constructs a Service. Domain components are ready immediately;
// storage and fan-out are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		shardCount:      16,
		queueSize:       10_000,
		dispatchWorkers: runtime.NumCPU(),
		sendTimeout:     2 * time.Second,
		dedupeSize:      100_000,
		confusionWindow: engagement.DefaultConfusionWindow,
		gazeWindow:      integrity.DefaultGazeWindow,
		offlineAfter:    10 * time.Second,
		subjectTTL:      30 * time.Minute,
		sweepInterval:   time.Second,
		provider:        perception.NewJSONProvider(),
		locks:           newKeyedLock(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	engOpts := []engagement.Option{engagement.WithConfusionWindow(s.confusionWindow)}
	if s.thresholds != nil {
		engOpts = append(engOpts, engagement.WithThresholds(s.thresholds[0], s.thresholds[1], s.thresholds[2]))
	}
	s.classifier = engagement.New(engOpts...)
	s.monitor = integrity.New(integrity.WithGazeWindow(s.gazeWindow))
	s.resolver = resolver.New(resolver.WithGazeAwaySurfaced(s.surfaceGazeAway))
	return s
}

// Start creates the store, queue, notifier and dispatchers and starts the
// retention sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting smartsession service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.store = repository.NewShardStore(runCtx, repository.WithShardCount(s.shardCount))
	if s.dedupeSize > 0 {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	} else {
		s.deduper = dedupe.NewNoopDeduper()
	}
	s.updates = updatequeue.NewInMemoryQueue(updatequeue.WithCapacity(s.queueSize))
	s.notifier = notify.New(notify.WithSendTimeout(s.sendTimeout))
	s.pool = dispatchpool.NewPool(s.dispatchWorkers, s.updates, s.notifier)
	s.pool.Start(runCtx)

	janitorCtx, cancelJanitor := context.WithCancel(runCtx)
	s.cancelJanitor = cancelJanitor
	s.janitorDone = make(chan struct{})
	if s.sweepInterval > 0 && (s.offlineAfter > 0 || s.subjectTTL > 0) {
		go s.runJanitor(janitorCtx)
	} else {
		close(s.janitorDone)
	}

	s.started = true
	s.logger.Info(ctx, "smartsession service started",
		logger.Int("shards", s.shardCount),
		logger.Int("dispatchers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("confusionWindow", s.confusionWindow),
		logger.Duration("gazeWindow", s.gazeWindow),
		logger.Bool("surfaceGazeAway", s.surfaceGazeAway),
	)
	return nil
}

// Stop drains queued updates, closes every observer and stops background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping smartsession service...")

	// Stop the sweep first so nothing is queued after the pool drains.
	s.cancelJanitor()
	<-s.janitorDone

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "dispatch pool did not drain", logger.Error(err))
	}
	_ = s.notifier.Close()
	_ = s.store.Close()
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "smartsession service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// ProcessPayload asks the provider for an observation and runs the frame.
// A provider failure leaves the store untouched.
func (s *Service) ProcessPayload(ctx context.Context, req FrameRequest) (model.SubjectState, error) {
	if !s.running() {
		return model.SubjectState{}, ErrNotStarted
	}
	if req.SubjectID == "" || req.SessionID == "" {
		return model.SubjectState{}, fmt.Errorf("%w: student_id and session_id are required", model.ErrInvalidFrame)
	}

	obs, err := s.provider.Analyze(ctx, req.Payload)
	if err != nil {
		metrics.RecordProviderFailure()
		s.logger.Warn(ctx, "metrics provider failed",
			logger.String("subject_id", req.SubjectID),
			logger.Error(err),
		)
		if !errors.Is(err, perception.ErrProviderFailure) {
			err = fmt.Errorf("%w: %w", perception.ErrProviderFailure, err)
		}
		return model.SubjectState{}, fmt.Errorf("subject %s: %w", req.SubjectID, err)
	}

	return s.ProcessFrame(ctx, model.Frame{
		FrameID:     req.FrameID,
		SubjectID:   req.SubjectID,
		SessionID:   req.SessionID,
		Observation: obs,
	})
}

// ProcessFrame runs one observation through classify, evaluate, resolve and
// upsert while holding the subject's lock, then queues the new record for
// observers. Frames for different subjects proceed in parallel.
func (s *Service) ProcessFrame(ctx context.Context, f model.Frame) (model.SubjectState, error) { //nolint:gocritic // hugeParam: Frame is a value type
	if !s.running() {
		return model.SubjectState{}, ErrNotStarted
	}
	if f.SubjectID == "" || f.SessionID == "" {
		return model.SubjectState{}, fmt.Errorf("%w: student_id and session_id are required", model.ErrInvalidFrame)
	}
	if f.Observation.FaceCount < 0 {
		metrics.RecordProviderFailure()
		return model.SubjectState{}, fmt.Errorf("subject %s: %w: negative face_count", f.SubjectID, perception.ErrProviderFailure)
	}

	start := time.Now()
	unlock := s.locks.Lock(f.SubjectID)
	defer unlock()

	key := dedupe.Key(f.SubjectID, f.FrameID)
	if s.deduper.SeenAndRecord(ctx, key) {
		if current, err := s.store.Get(ctx, f.SubjectID); err == nil {
			metrics.RecordFrameDuplicate()
			s.logger.Debug(ctx, "duplicate frame, returning current state",
				logger.String("subject_id", f.SubjectID),
				logger.String("frame_id", f.FrameID),
			)
			return current, nil
		}
		// The record was evicted since; treat the retry as a fresh frame.
	}

	at := f.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	m := f.Observation.Metrics

	raw := s.classifier.Classify(m.Brow, m.Smile)
	sustained := s.classifier.Update(f.SubjectID, raw, at)
	alert := s.monitor.Evaluate(f.SubjectID, f.Observation.FaceCount, m.Gaze, at)
	decision := s.resolver.Resolve(alert, raw, sustained)

	state := model.SubjectState{
		SubjectID:      f.SubjectID,
		SessionID:      f.SessionID,
		Status:         decision.Status,
		Alert:          decision.Alert,
		FaceCount:      f.Observation.FaceCount,
		ConfusionScore: resolver.ConfusionScore(sustained),
		LastUpdated:    at,
	}
	if err := s.store.Upsert(ctx, state); err != nil {
		s.deduper.Unrecord(ctx, key)
		metrics.RecordFrameError("store")
		return model.SubjectState{}, fmt.Errorf("store subject %s: %w", f.SubjectID, err)
	}
	s.publish(ctx, model.Update{Kind: model.UpdateSubject, State: state})

	elapsed := time.Since(start)
	metrics.RecordFrameProcessed(string(state.Status), string(state.Alert))
	metrics.RecordResolverRule(decision.Rule.String())
	metrics.RecordFrameLatency(float64(elapsed.Microseconds()) / 1000)
	s.logger.Debug(ctx, "processed frame",
		logger.String("subject_id", f.SubjectID),
		logger.Duration("elapsed", elapsed),
		logger.Int("face_count", state.FaceCount),
		logger.String("raw", string(raw)),
		logger.String("integrity", string(alert)),
		logger.String("status", string(state.Status)),
		logger.String("alert", string(state.Alert)),
		logger.Float64("confusion_score", state.ConfusionScore),
	)
	return state, nil
}

// publish queues u for observers. A full queue drops it.
func (s *Service) publish(ctx context.Context, u model.Update) {
	if s.updates.Enqueue(ctx, u) {
		return
	}
	metrics.RecordUpdateDropped()
	s.logger.Warn(ctx, "update dropped, dispatch queue full",
		logger.String("subject_id", u.State.SubjectID),
		logger.String("kind", string(u.Kind)),
	)
}

// Roster returns every current record sorted by subject id.
func (s *Service) Roster(ctx context.Context) ([]model.SubjectState, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	out := s.store.Snapshot(ctx)
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// Subject returns one record, or repository.ErrNotFound.
func (s *Service) Subject(ctx context.Context, subjectID string) (model.SubjectState, error) {
	if !s.running() {
		return model.SubjectState{}, ErrNotStarted
	}
	return s.store.Get(ctx, subjectID)
}

// Subscribe registers an observer and sends it the current roster.
func (s *Service) Subscribe(ctx context.Context, conn notify.Conn) error {
	if !s.running() {
		return ErrNotStarted
	}
	if err := s.notifier.Subscribe(conn); err != nil {
		return err
	}
	roster, err := s.Roster(ctx)
	if err != nil {
		return err
	}
	if err := s.notifier.SendTo(ctx, conn, notify.Message{Type: model.UpdateRoster, Data: roster}); err != nil {
		s.logger.Warn(ctx, "initial roster push failed", logger.String("conn_id", conn.ID()), logger.Error(err))
	}
	return nil
}

// Unsubscribe removes an observer. It is safe to call more than once.
func (s *Service) Unsubscribe(conn notify.Conn) {
	if !s.running() {
		return
	}
	s.notifier.Unsubscribe(conn)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"shardCount":      s.shardCount,
		"dispatchWorkers": s.dispatchWorkers,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"confusionWindow": s.confusionWindow.String(),
		"gazeWindow":      s.gazeWindow.String(),
		"surfaceGazeAway": s.surfaceGazeAway,
	}
	if s.started {
		subjects := s.store.Count(ctx)
		observers := s.notifier.Count()
		stats["subjects"] = subjects
		stats["observers"] = observers
		stats["queueLength"] = s.updates.Len(ctx)
		stats["dispatched"] = s.pool.Processed()
		stats["engagementTimers"] = s.classifier.Len()
		stats["gazeTimers"] = s.monitor.Len()
		stats["rememberedFrames"] = s.deduper.Size()
		stats["heldLocks"] = s.locks.Len()

		metrics.UpdateSubjectsTracked(subjects)
		metrics.UpdateObservers(observers)
	}
	return stats
}
