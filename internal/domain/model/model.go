// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"math"
	"time"
)

// Status is the single user-facing classification of a subject.
type Status string

// Known statuses.
const (
	StatusFocused    Status = "FOCUSED"
	StatusConfused   Status = "CONFUSED"
	StatusDistracted Status = "DISTRACTED"
	StatusOffline    Status = "OFFLINE"
)

// Alert is the prioritized alert code attached to a SubjectState.
type Alert string

// Known alert codes. UNAUTHORIZED_OBJECT is part of the dashboard taxonomy
// but nothing in the pipeline produces it yet.
const (
	AlertNone               Alert = "NONE"
	AlertMultipleFaces      Alert = "MULTIPLE_FACES"
	AlertNoFace             Alert = "NO_FACE"
	AlertUnauthorizedObject Alert = "UNAUTHORIZED_OBJECT"
	AlertGazeAway           Alert = "GAZE_AWAY"
)

// RawEmotion is the instantaneous label produced from brow/smile scores.
type RawEmotion string

// Raw emotion labels.
const (
	EmotionHappy    RawEmotion = "HAPPY"
	EmotionConfused RawEmotion = "CONFUSED"
	EmotionNeutral  RawEmotion = "NEUTRAL"
)

// IntegrityAlert is the output of the integrity monitor.
type IntegrityAlert string

// Integrity alerts.
const (
	IntegrityClean         IntegrityAlert = "CLEAN"
	IntegrityNoFace        IntegrityAlert = "NO_FACE"
	IntegrityMultipleFaces IntegrityAlert = "MULTIPLE_FACES"
	IntegrityGazeAway      IntegrityAlert = "GAZE_AWAY"
)

// Gaze is the coarse gaze direction reported by the metrics provider.
type Gaze string

// Gaze directions.
const (
	GazeCenter Gaze = "CENTER"
	GazeLeft   Gaze = "LEFT"
	GazeRight  Gaze = "RIGHT"
	GazeUp     Gaze = "UP"
	GazeDown   Gaze = "DOWN"
)

// ParseGaze maps a provider string onto a Gaze. Unknown values report false.
func ParseGaze(s string) (Gaze, bool) {
	switch g := Gaze(s); g {
	case GazeCenter, GazeLeft, GazeRight, GazeUp, GazeDown:
		return g, true
	default:
		return GazeCenter, false
	}
}

// Metrics is the per-frame metrics bundle. Brow and Smile are intended to lie
// in [0,1] but are not clamped.
type Metrics struct {
	Gaze  Gaze    `json:"gaze"`
	Brow  float64 `json:"brow"`
	Smile float64 `json:"smile"`
}

// DefaultMetrics is substituted for a missing or malformed bundle.
func DefaultMetrics() Metrics {
	return Metrics{Gaze: GazeCenter}
}

// Observation is the metrics provider's output for one frame.
type Observation struct {
	FaceCount int     `json:"face_count"`
	Metrics   Metrics `json:"metrics"`
}

// Frame is one observation bound to a subject.
type Frame struct {
	FrameID     string
	SubjectID   string
	SessionID   string
	Observation Observation
	ReceivedAt  time.Time
}

// SubjectState is the externally visible record for one subject.
type SubjectState struct {
	SubjectID      string    `json:"student_id"`
	SessionID      string    `json:"session_id"`
	Status         Status    `json:"status"`
	Alert          Alert     `json:"alert"`
	FaceCount      int       `json:"face_count"`
	ConfusionScore float64   `json:"confusion_score"`
	LastUpdated    time.Time `json:"-"`
}

type subjectStateJSON struct {
	SubjectID      string  `json:"student_id"`
	SessionID      string  `json:"session_id"`
	Status         Status  `json:"status"`
	Alert          Alert   `json:"alert"`
	FaceCount      int     `json:"face_count"`
	ConfusionScore float64 `json:"confusion_score"`
	LastUpdated    float64 `json:"last_updated"`
}

// MarshalJSON encodes LastUpdated as fractional unix seconds, the shape the
// dashboard client consumes.
func (s SubjectState) MarshalJSON() ([]byte, error) {
	return json.Marshal(subjectStateJSON{
		SubjectID:      s.SubjectID,
		SessionID:      s.SessionID,
		Status:         s.Status,
		Alert:          s.Alert,
		FaceCount:      s.FaceCount,
		ConfusionScore: s.ConfusionScore,
		LastUpdated:    float64(s.LastUpdated.UnixNano()) / float64(time.Second),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *SubjectState) UnmarshalJSON(b []byte) error {
	var raw subjectStateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	sec, frac := math.Modf(raw.LastUpdated)
	*s = SubjectState{
		SubjectID:      raw.SubjectID,
		SessionID:      raw.SessionID,
		Status:         raw.Status,
		Alert:          raw.Alert,
		FaceCount:      raw.FaceCount,
		ConfusionScore: raw.ConfusionScore,
		LastUpdated:    time.Unix(int64(sec), int64(frac*float64(time.Second))),
	}
	return nil
}

// SameContent reports whether two records are equal ignoring LastUpdated.
func (s SubjectState) SameContent(o SubjectState) bool {
	return s.SubjectID == o.SubjectID &&
		s.SessionID == o.SessionID &&
		s.Status == o.Status &&
		s.Alert == o.Alert &&
		s.FaceCount == o.FaceCount &&
		s.ConfusionScore == o.ConfusionScore
}
