// Package server exposes the agent service over a JSON REST API and streams
// agent, review and workspace events over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"inkpilot/internal/document"
	"inkpilot/internal/events"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/review"
	"inkpilot/internal/services"
)

// Server serves the REST API and the event websocket.
type Server struct {
	svc    *services.Services
	hub    *events.Hub
	logger *slog.Logger
	srv    *http.Server
}

func New(svc *services.Services, hub *events.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, hub: hub, logger: logger}
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSubmit)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.handleStop)

	// Document
	mux.HandleFunc("GET /api/sessions/{id}/document", s.handleGetDocument)
	mux.HandleFunc("PUT /api/sessions/{id}/document", s.handleOpenDocument)
	mux.HandleFunc("POST /api/sessions/{id}/document/save", s.handleSaveDocument)
	mux.HandleFunc("POST /api/sessions/{id}/undo", s.handleUndo)
	mux.HandleFunc("POST /api/sessions/{id}/redo", s.handleRedo)
	mux.HandleFunc("GET /api/sessions/{id}/selection", s.handleGetSelection)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", s.handleSetSelection)
	mux.HandleFunc("GET /api/sessions/{id}/comments", s.handleListComments)

	// Review
	mux.HandleFunc("GET /api/sessions/{id}/changes", s.handleListChanges)
	mux.HandleFunc("POST /api/sessions/{id}/changes/accept-all", s.handleAcceptAll)
	mux.HandleFunc("POST /api/sessions/{id}/changes/reject-all", s.handleRejectAll)
	mux.HandleFunc("POST /api/sessions/{id}/changes/{change}/accept", s.handleAccept)
	mux.HandleFunc("POST /api/sessions/{id}/changes/{change}/reject", s.handleReject)
	mux.HandleFunc("GET /api/sessions/{id}/changes/{change}/hunks", s.handleHunks)

	// Models and keys
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("PUT /api/models/default", s.handleSetDefaultModel)
	mux.HandleFunc("PUT /api/models/{key}/enabled", s.handleSetModelEnabled)
	mux.HandleFunc("PUT /api/providers/{provider}/enabled", s.handleSetProviderEnabled)
	mux.HandleFunc("GET /api/keys", s.handleListKeys)
	mux.HandleFunc("PUT /api/keys/{provider}", s.handleStoreKey)
	mux.HandleFunc("DELETE /api/keys/{provider}", s.handleDeleteKey)

	// Workspaces
	mux.HandleFunc("GET /api/workspaces", s.handleListWorkspaces)
	mux.HandleFunc("GET /api/workspaces/{id}/tree", s.handleWorkspaceTree)
	mux.HandleFunc("GET /api/workspaces/{id}/history", s.handleWorkspaceHistory)

	mux.HandleFunc("GET /api/tools", s.handleListTools)

	// WebSocket
	mux.HandleFunc("/api/events", s.handleEventsWebSocket)

	return s.corsMiddleware(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting web server", "addr", addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("API error", "error", err)
	} else {
		s.logger.Debug("API error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrModelNotFound),
		errors.Is(err, review.ErrUnknownChange),
		errors.Is(err, tools.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrTurnInProgress),
		errors.Is(err, review.ErrNotPending):
		status = http.StatusConflict
	case errors.Is(err, document.ErrOutOfRange),
		errors.Is(err, tools.ErrInvalidPath),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	s.errorResponse(w, status, err)
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
