// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/smartsession/internal/adapters/http/ws"
	"github.com/okian/smartsession/internal/adapters/notify"
	service "github.com/okian/smartsession/internal/app"
	"github.com/okian/smartsession/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ProcessPayload runs one frame through the pipeline.
	ProcessPayload(ctx context.Context, req service.FrameRequest) (model.SubjectState, error)

	// Read operations expose the roster.
	Roster(ctx context.Context) ([]model.SubjectState, error)
	Subject(ctx context.Context, subjectID string) (model.SubjectState, error)

	// Observer membership for the websocket endpoint.
	Subscribe(ctx context.Context, conn notify.Conn) error
	Unsubscribe(conn notify.Conn)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	framesHandler   *FramesHandler
	sessionsHandler *SessionsHandler
	rootHandler     *RootHandler
	wsHandler       *ws.Handler
	allowedOrigins  []string
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, allowedOrigins []string) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		framesHandler:   NewFramesHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		rootHandler:     NewRootHandler(),
		wsHandler:       ws.NewHandler(deps, ws.WithAllowedOrigins(allowedOrigins)),
		allowedOrigins:  allowedOrigins,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/student/process-frame", MetricsMiddleware(s.framesHandler.HandleProcessFrame, "process_frame"))
	mux.HandleFunc("/teacher/sessions", MetricsMiddleware(s.sessionsHandler.HandleListSessions, "sessions"))
	mux.HandleFunc("/teacher/sessions/", MetricsMiddleware(s.sessionsHandler.HandleGetSession, "session"))
	// Not wrapped: the metrics writer cannot be hijacked.
	mux.Handle("/ws/teacher", s.wsHandler)
	mux.HandleFunc("/", MetricsMiddleware(s.rootHandler.HandleRoot, "root"))
}

// Handler returns mux wrapped with CORS for the configured origins.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return CORSMiddleware(s.allowedOrigins, mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstreamError maps a service error to 503 before start, 500 otherwise.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, service.ErrNotStarted) {
		writeError(w, http.StatusServiceUnavailable, "not_started", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
}
