package service

import (
	"time"

	"github.com/okian/smartsession/internal/domain/perception"
	"github.com/okian/smartsession/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithShardCount sets the number of session store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithQueueSize sets the capacity of the update queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDispatchWorkers sets the number of broadcast dispatchers.
func WithDispatchWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.dispatchWorkers = count
		}
	}
}

// WithSendTimeout bounds a push to one observer.
func WithSendTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.sendTimeout = timeout
		}
	}
}

// WithDedupeSize sets how many frame ids are remembered. Zero disables dedupe.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithConfusionWindow sets how long confusion must persist.
func WithConfusionWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confusionWindow = d
		}
	}
}

// WithGazeWindow sets how long gaze may stay off-center.
func WithGazeWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gazeWindow = d
		}
	}
}

// WithThresholds sets the classifier thresholds.
func WithThresholds(smileHappy, browConfused, smileCeiling float64) Option {
	return func(s *Service) {
		s.thresholds = &[3]float64{smileHappy, browConfused, smileCeiling}
	}
}

// WithGazeAwaySurfaced reports sustained GAZE_AWAY as DISTRACTED.
func WithGazeAwaySurfaced(enabled bool) Option {
	return func(s *Service) {
		s.surfaceGazeAway = enabled
	}
}

// WithRetention configures the OFFLINE and eviction sweep. A zero duration
// disables that step; a zero interval disables the sweep entirely.
func WithRetention(offlineAfter, ttl, interval time.Duration) Option {
	return func(s *Service) {
		s.offlineAfter = offlineAfter
		s.subjectTTL = ttl
		s.sweepInterval = interval
	}
}

// WithProvider sets the metrics provider used by ProcessPayload.
func WithProvider(p perception.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
