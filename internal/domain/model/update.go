package model

// UpdateKind names a change pushed to observers.
type UpdateKind string

// Update kinds, also used as the "type" of observer messages.
const (
	UpdateRoster  UpdateKind = "roster"
	UpdateSubject UpdateKind = "subject_update"
	UpdateRemoved UpdateKind = "subject_removed"
)

// Update is a single state change queued for fan-out.
type Update struct {
	Kind  UpdateKind
	State SubjectState
}
