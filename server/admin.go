package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/randalmurphal/claude-relay/session"
)

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type sessionResponse struct {
	SessionID string     `json:"sessionId"`
	Active    bool       `json:"active"`
	Status    string     `json:"status,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.runner.ActiveSessions()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: ids})
}

// handleGetSession reports whether a session is running. Unknown ids are
// reported inactive rather than 404.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resp := sessionResponse{SessionID: id}
	if info, ok := s.runner.Registry().Info(id); ok {
		resp.Active = info.Status == session.StatusActive
		resp.Status = string(info.Status)
		resp.StartedAt = &info.StartedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", slog.Any("error", err))
	}
}
