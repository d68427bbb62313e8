package simulate

import (
	"fmt"
	"sort"

	"github.com/okian/smartsession/internal/domain/model"
)

// Frame is the body posted to /student/process-frame.
type Frame struct {
	StudentID string        `json:"student_id"`
	SessionID string        `json:"session_id"`
	FrameID   string        `json:"frame_id,omitempty"`
	FaceCount int           `json:"face_count"`
	Metrics   model.Metrics `json:"metrics"`
}

// Scenario scripts the observations one kind of subject produces and the
// states the roster may show for it once the script has run.
type Scenario struct {
	Name        string
	Observation model.Observation
	Accept      []Outcome
}

// Outcome is one acceptable (status, alert) pair.
type Outcome struct {
	Status model.Status
	Alert  model.Alert
}

func (o Outcome) String() string { return fmt.Sprintf("%s/%s", o.Status, o.Alert) }

// Accepts reports whether st matches one of the scenario's outcomes.
func (s Scenario) Accepts(st model.SubjectState) bool {
	for _, o := range s.Accept {
		if st.Status == o.Status && st.Alert == o.Alert {
			return true
		}
	}
	return false
}

var scenarios = map[string]Scenario{
	"focused": {
		Name:        "focused",
		Observation: model.Observation{FaceCount: 1, Metrics: model.Metrics{Gaze: model.GazeCenter, Brow: 0.1, Smile: 0.7}},
		Accept:      []Outcome{{model.StatusFocused, model.AlertNone}},
	},
	"confused": {
		Name:        "confused",
		Observation: model.Observation{FaceCount: 1, Metrics: model.Metrics{Gaze: model.GazeCenter, Brow: 0.6, Smile: 0.1}},
		Accept:      []Outcome{{model.StatusConfused, model.AlertNone}},
	},
	"multi-face": {
		Name:        "multi-face",
		Observation: model.Observation{FaceCount: 2, Metrics: model.Metrics{Gaze: model.GazeCenter}},
		Accept:      []Outcome{{model.StatusDistracted, model.AlertMultipleFaces}},
	},
	"no-face": {
		Name:        "no-face",
		Observation: model.Observation{FaceCount: 0, Metrics: model.DefaultMetrics()},
		Accept:      []Outcome{{model.StatusDistracted, model.AlertNoFace}},
	},
	// GAZE_AWAY only shows when the server surfaces it.
	"gaze-away": {
		Name:        "gaze-away",
		Observation: model.Observation{FaceCount: 1, Metrics: model.Metrics{Gaze: model.GazeLeft, Brow: 0.1, Smile: 0.1}},
		Accept: []Outcome{
			{model.StatusFocused, model.AlertNone},
			{model.StatusDistracted, model.AlertGazeAway},
		},
	},
}

// ScenarioNames lists the built-in scenarios in a stable order.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named scenarios, or all of them when names is empty.
func Lookup(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		names = ScenarioNames()
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, ok := scenarios[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownScenario, name, ScenarioNames())
		}
		out = append(out, s)
	}
	return out, nil
}
