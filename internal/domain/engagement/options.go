// Package engagement classifies brow/smile metrics and debounces sustained confusion.
package engagement

import "time"

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithConfusionWindow sets how long CONFUSED must hold before it is reported.
func WithConfusionWindow(window time.Duration) Option {
	return func(c *Classifier) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithThresholds overrides the smile and brow thresholds. smileHappy is the
// HAPPY cut, browConfused and smileCeiling bound the CONFUSED rule.
func WithThresholds(smileHappy, browConfused, smileCeiling float64) Option {
	return func(c *Classifier) {
		c.smileHappy = smileHappy
		c.browConfused = browConfused
		c.smileCeiling = smileCeiling
	}
}
