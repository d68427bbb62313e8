package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

type shard struct {
	mu      sync.RWMutex
	records map[string]model.SubjectState
}

// ShardStore is an in-memory Store split into RWMutex-guarded shards.
// Writers for different subjects only contend when they hash to the same shard.
type ShardStore struct {
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewShardStore constructs a sharded store and starts its metrics updater.
// The updater stops when ctx is done or Close is called.
func NewShardStore(ctx context.Context, opts ...Option) *ShardStore {
	s := &ShardStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]model.SubjectState)}
	}

	metrics.UpdateStoreShardCount(s.shardCount)
	s.startMetricsUpdater(ctx)
	return s
}

func (s *ShardStore) shardFor(subjectID string) *shard {
	return s.shards[xxhash.Sum64String(subjectID)%uint64(len(s.shards))]
}

// Upsert implements Store.Upsert.
func (s *ShardStore) Upsert(_ context.Context, state model.SubjectState) error {
	if state.SubjectID == "" {
		return ErrInvalidSubject
	}
	start := time.Now()

	sh := s.shardFor(state.SubjectID)
	sh.mu.Lock()
	sh.records[state.SubjectID] = state
	sh.mu.Unlock()

	metrics.RecordStoreUpsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// Snapshot implements Store.Snapshot. Each shard is copied under its own read
// lock, so the result is consistent per record, not across shards.
func (s *ShardStore) Snapshot(_ context.Context) []model.SubjectState {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	out := make([]model.SubjectState, 0, s.countAll())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.records {
			out = append(out, st)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Get implements Store.Get.
func (s *ShardStore) Get(_ context.Context, subjectID string) (model.SubjectState, error) {
	sh := s.shardFor(subjectID)
	sh.mu.RLock()
	st, ok := sh.records[subjectID]
	sh.mu.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.SubjectState{}, ErrNotFound
	}
	return st, nil
}

// Count implements Store.Count.
func (s *ShardStore) Count(_ context.Context) int {
	return s.countAll()
}

func (s *ShardStore) countAll() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// Delete implements Store.Delete.
func (s *ShardStore) Delete(_ context.Context, subjectID string) bool {
	sh := s.shardFor(subjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.records[subjectID]; !ok {
		return false
	}
	delete(sh.records, subjectID)
	return true
}

// Stale implements Store.Stale.
func (s *ShardStore) Stale(_ context.Context, before time.Time) []model.SubjectState {
	var out []model.SubjectState
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.records {
			if st.LastUpdated.Before(before) {
				out = append(out, st)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Close stops the background metrics updater.
func (s *ShardStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *ShardStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *ShardStore) updateMetrics() {
	total := 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.records)
		sh.mu.RUnlock()
		metrics.UpdateStoreRecordsPerShard(strconv.Itoa(i), n)
		total += n
	}
	metrics.UpdateStoreRecordsTotal(total)
	metrics.UpdateSubjectsTracked(total)
}
