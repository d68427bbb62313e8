package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/smartsession/internal/app"
	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/internal/domain/perception"
	"github.com/okian/smartsession/pkg/metrics"
)

const maxFrameBytes = 1 << 20

// FrameDependencies defines the interface for frame processing.
type FrameDependencies interface {
	ProcessPayload(ctx context.Context, req service.FrameRequest) (model.SubjectState, error)
}

// FramesHandler handles frame submissions.
type FramesHandler struct {
	deps FrameDependencies
}

// NewFramesHandler creates a new frames handler.
func NewFramesHandler(deps FrameDependencies) *FramesHandler {
	return &FramesHandler{deps: deps}
}

// frameRequest carries the routing fields of POST /student/process-frame.
// The observation fields are left in the body for the metrics provider.
// camelCase ids are accepted for older dashboard clients.
type frameRequest struct {
	StudentID      string `json:"student_id"`
	SessionID      string `json:"session_id"`
	FrameID        string `json:"frame_id"`
	StudentIDCamel string `json:"studentId"`
	SessionIDCamel string `json:"sessionId"`
	FrameIDCamel   string `json:"frameId"`
}

func (f *frameRequest) normalize() {
	if f.StudentID == "" {
		f.StudentID = f.StudentIDCamel
	}
	if f.SessionID == "" {
		f.SessionID = f.SessionIDCamel
	}
	if f.FrameID == "" {
		f.FrameID = f.FrameIDCamel
	}
	f.StudentID = strings.TrimSpace(f.StudentID)
	f.SessionID = strings.TrimSpace(f.SessionID)
	f.FrameID = strings.TrimSpace(f.FrameID)
}

func (f frameRequest) validate() error {
	switch {
	case f.StudentID == "":
		return errors.New("missing student_id")
	case f.SessionID == "":
		return errors.New("missing session_id")
	}
	return nil
}

// HandleProcessFrame handles POST /student/process-frame and returns the
// resolved record.
func (h *FramesHandler) HandleProcessFrame(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_frame"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		metrics.RecordFrameError("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("read body: %w", err)))
		return
	}
	var req frameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.RecordFrameError("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.normalize()
	if err := req.validate(); err != nil {
		metrics.RecordFrameError("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	state, err := h.deps.ProcessPayload(r.Context(), service.FrameRequest{
		SubjectID: req.StudentID,
		SessionID: req.SessionID,
		FrameID:   req.FrameID,
		Payload:   body,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, model.ErrInvalidFrame):
		metrics.RecordFrameError("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, perception.ErrProviderFailure):
		writeError(w, http.StatusBadGateway, "provider_failure", WrapKind(op, ErrUpstream, err))
	default:
		metrics.RecordFrameError("internal")
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
