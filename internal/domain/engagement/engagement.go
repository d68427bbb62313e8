// Package engagement classifies brow/smile metrics and debounces sustained confusion.
package engagement

import (
	"sync"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
)

// Default policy constants.
const (
	DefaultConfusionWindow = time.Second
	DefaultSmileHappy      = 0.5
	DefaultBrowConfused    = 0.35
	DefaultSmileCeiling    = 0.3
)

// timer is the per-subject debounce state.
type timer struct {
	windowStart time.Time
	open        bool
	lastRaw     model.RawEmotion
}

// Classifier maps metrics to a RawEmotion and tracks, per subject, how long
// CONFUSED has been observed without interruption.
type Classifier struct {
	window       time.Duration
	smileHappy   float64
	browConfused float64
	smileCeiling float64

	mu     sync.Mutex
	timers map[string]*timer
}

// New creates a Classifier with the reference policy unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		window:       DefaultConfusionWindow,
		smileHappy:   DefaultSmileHappy,
		browConfused: DefaultBrowConfused,
		smileCeiling: DefaultSmileCeiling,
		timers:       make(map[string]*timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify is pure: the first matching rule wins and inputs are not range checked.
func (c *Classifier) Classify(brow, smile float64) model.RawEmotion {
	if smile > c.smileHappy {
		return model.EmotionHappy
	}
	if brow > c.browConfused && smile < c.smileCeiling {
		return model.EmotionConfused
	}
	return model.EmotionNeutral
}

// Update feeds one raw label observed at `at` and reports whether confusion
// has now been sustained for at least the configured window. Any
// non-CONFUSED label closes the window.
func (c *Classifier) Update(subjectID string, raw model.RawEmotion, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timers[subjectID]
	if !ok {
		t = &timer{lastRaw: model.EmotionNeutral}
		c.timers[subjectID] = t
	}
	t.lastRaw = raw

	if raw != model.EmotionConfused {
		t.open = false
		t.windowStart = time.Time{}
		return false
	}
	if !t.open {
		t.open = true
		t.windowStart = at
		return false
	}
	return at.Sub(t.windowStart) >= c.window
}

// LastRaw returns the most recent raw label recorded for subjectID.
func (c *Classifier) LastRaw(subjectID string) (model.RawEmotion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[subjectID]
	if !ok {
		return "", false
	}
	return t.lastRaw, true
}

// Forget drops all timer state for subjectID.
func (c *Classifier) Forget(subjectID string) {
	c.mu.Lock()
	delete(c.timers, subjectID)
	c.mu.Unlock()
}

// Len returns the number of subjects with timer state.
func (c *Classifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Window returns the configured confusion window.
func (c *Classifier) Window() time.Duration { return c.window }
