package simulate

import (
	"fmt"
	"strings"

	"github.com/okian/smartsession/internal/domain/model"
)

// Mismatch describes one subject whose roster entry broke its script.
type Mismatch struct {
	SubjectID string
	Scenario  string
	Missing   bool
	Got       model.SubjectState
	Accept    []Outcome
}

func (m Mismatch) String() string {
	if m.Missing {
		return fmt.Sprintf("%s: not in roster", m.Scenario)
	}
	want := make([]string, len(m.Accept))
	for i, o := range m.Accept {
		want[i] = o.String()
	}
	return fmt.Sprintf("%s: got %s/%s, want %s", m.Scenario, m.Got.Status, m.Got.Alert, strings.Join(want, " or "))
}

// verifyRoster checks every simulated subject against the roster. Entries
// for other subjects are ignored so runs can share a server.
func verifyRoster(roster []model.SubjectState, subjects []subject) []Mismatch {
	byID := make(map[string]model.SubjectState, len(roster))
	for _, st := range roster {
		byID[st.SubjectID] = st
	}

	var out []Mismatch
	for _, s := range subjects {
		st, ok := byID[s.id]
		switch {
		case !ok:
			out = append(out, Mismatch{SubjectID: s.id, Scenario: s.scenario.Name, Missing: true, Accept: s.scenario.Accept})
		case !s.scenario.Accepts(st):
			out = append(out, Mismatch{SubjectID: s.id, Scenario: s.scenario.Name, Got: st, Accept: s.scenario.Accept})
		}
	}
	return out
}
