package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/smartsession/internal/adapters/repository"
	"github.com/okian/smartsession/internal/domain/model"
)

// SessionsDependencies defines the interface for roster reads.
type SessionsDependencies interface {
	Roster(ctx context.Context) ([]model.SubjectState, error)
	Subject(ctx context.Context, subjectID string) (model.SubjectState, error)
}

// SessionsHandler serves the teacher's roster.
type SessionsHandler struct {
	deps SessionsDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionsDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleListSessions handles GET /teacher/sessions.
func (h *SessionsHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_sessions"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	roster, err := h.deps.Roster(r.Context())
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	if roster == nil {
		roster = []model.SubjectState{}
	}
	writeJSON(w, http.StatusOK, roster)
}

// HandleGetSession handles GET /teacher/sessions/{student_id}.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/teacher/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	state, err := h.deps.Subject(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
