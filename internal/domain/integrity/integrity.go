// Package integrity evaluates face-count and gaze signals against proctoring policy.
package integrity

import (
	"sync"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
)

// DefaultGazeWindow is how long gaze must stay off-center before GAZE_AWAY.
const DefaultGazeWindow = 3 * time.Second

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithGazeWindow sets the off-center persistence threshold.
func WithGazeWindow(window time.Duration) Option {
	return func(m *Monitor) {
		if window > 0 {
			m.window = window
		}
	}
}

// Monitor tracks, per subject, how long gaze has been continuously off-center.
// Face-count violations take priority and always reset the gaze timer.
type Monitor struct {
	window time.Duration

	mu     sync.Mutex
	starts map[string]time.Time
}

// New creates a Monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		window: DefaultGazeWindow,
		starts: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate applies the rules in priority order for one frame observed at `at`.
func (m *Monitor) Evaluate(subjectID string, faceCount int, gaze model.Gaze, at time.Time) model.IntegrityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case faceCount == 0:
		delete(m.starts, subjectID)
		return model.IntegrityNoFace
	case faceCount > 1:
		delete(m.starts, subjectID)
		return model.IntegrityMultipleFaces
	case gaze != model.GazeCenter:
		start, running := m.starts[subjectID]
		if !running {
			m.starts[subjectID] = at
			return model.IntegrityClean
		}
		if at.Sub(start) > m.window {
			return model.IntegrityGazeAway
		}
		return model.IntegrityClean
	default:
		delete(m.starts, subjectID)
		return model.IntegrityClean
	}
}

// Forget drops the gaze timer for subjectID.
func (m *Monitor) Forget(subjectID string) {
	m.mu.Lock()
	delete(m.starts, subjectID)
	m.mu.Unlock()
}

// Len returns the number of running gaze timers.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

// Window returns the configured gaze window.
func (m *Monitor) Window() time.Duration { return m.window }
