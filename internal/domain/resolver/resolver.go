// Package resolver merges integrity and engagement signals into one status/alert pair.
//
// The rules form a strict total order; the first match wins:
//
//  1. NO_FACE            -> DISTRACTED / NO_FACE
//  2. MULTIPLE_FACES     -> DISTRACTED / MULTIPLE_FACES
//     GAZE_AWAY          -> DISTRACTED / GAZE_AWAY (only when surfaced)
//  3. sustained confused -> CONFUSED   / NONE
//  4. raw HAPPY          -> FOCUSED    / NONE
//  5. otherwise          -> FOCUSED    / NONE
package resolver

import "github.com/okian/smartsession/internal/domain/model"

// Rule identifies which resolver rule fired.
type Rule int

// Resolver rules in priority order.
const (
	RuleNoFace Rule = iota + 1
	RuleMultipleFaces
	RuleSustainedConfusion
	RuleHappy
	RuleDefault
	RuleGazeAway
)

// ConfusedScore is the coarse confusion_score reported while confusion is sustained.
const ConfusedScore = 70.0

// Decision is the resolved public pair plus the rule that produced it.
type Decision struct {
	Status model.Status
	Alert  model.Alert
	Rule   Rule
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithGazeAwaySurfaced ranks GAZE_AWAY between MULTIPLE_FACES and sustained
// confusion. Off by default, in which case GAZE_AWAY is tracked but does not
// change the output.
func WithGazeAwaySurfaced(enabled bool) Option {
	return func(r *Resolver) {
		r.surfaceGazeAway = enabled
	}
}

// Resolver is stateless apart from its policy flags and safe for concurrent use.
type Resolver struct {
	surfaceGazeAway bool
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies the priority order.
func (r *Resolver) Resolve(integrity model.IntegrityAlert, raw model.RawEmotion, sustained bool) Decision {
	switch {
	case integrity == model.IntegrityNoFace:
		return Decision{Status: model.StatusDistracted, Alert: model.AlertNoFace, Rule: RuleNoFace}
	case integrity == model.IntegrityMultipleFaces:
		return Decision{Status: model.StatusDistracted, Alert: model.AlertMultipleFaces, Rule: RuleMultipleFaces}
	case r.surfaceGazeAway && integrity == model.IntegrityGazeAway:
		return Decision{Status: model.StatusDistracted, Alert: model.AlertGazeAway, Rule: RuleGazeAway}
	case sustained:
		return Decision{Status: model.StatusConfused, Alert: model.AlertNone, Rule: RuleSustainedConfusion}
	case raw == model.EmotionHappy:
		return Decision{Status: model.StatusFocused, Alert: model.AlertNone, Rule: RuleHappy}
	default:
		return Decision{Status: model.StatusFocused, Alert: model.AlertNone, Rule: RuleDefault}
	}
}

// ConfusionScore derives the two-level confusion_score.
func ConfusionScore(sustained bool) float64 {
	if sustained {
		return ConfusedScore
	}
	return 0
}

// String returns a metric-friendly rule name.
func (r Rule) String() string {
	switch r {
	case RuleNoFace:
		return "no_face"
	case RuleMultipleFaces:
		return "multiple_faces"
	case RuleGazeAway:
		return "gaze_away"
	case RuleSustainedConfusion:
		return "sustained_confusion"
	case RuleHappy:
		return "happy"
	case RuleDefault:
		return "default"
	default:
		return "unknown"
	}
}
