package localapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"firexview/cli/internal/correlator"
)

func (s *Server) registerTaskRoutes() {
	s.mux.HandleFunc("/api/v1/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/v1/tasks/", s.handleTaskActions)
	s.mux.HandleFunc("/api/v1/run-states", s.handleRunStates)
	s.mux.HandleFunc("/api/v1/flame", s.handleFlame)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if root := strings.TrimSpace(r.URL.Query().Get("descendants_of")); root != "" {
		respondOK(w, s.deps.Engine.DescendantTasks(root))
		return
	}
	respondOK(w, s.deps.Engine.ActiveView())
}

func (s *Server) handleRunStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	respondOK(w, s.deps.Engine.RunStates())
}

func (s *Server) handleFlame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	respondOK(w, s.deps.Engine.FlameSummaries())
}

// handleTaskActions serves /api/v1/tasks/{uuid},
// /api/v1/tasks/{uuid}/revoke and POST /api/v1/tasks/fields.
func (s *Server) handleTaskActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
	parts := strings.Split(rest, "/")
	uuid := strings.TrimSpace(parts[0])
	if uuid == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "task uuid is required")
		return
	}
	switch {
	case len(parts) == 1 && uuid == "fields" && r.Method == http.MethodPost:
		s.handleTaskFields(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleTaskGet(w, r, uuid)
	case len(parts) == 2 && parts[1] == "revoke" && r.Method == http.MethodPost:
		s.handleTaskRevoke(w, r, uuid)
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown task route")
	}
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request, uuid string) {
	if r.URL.Query().Get("details") == "1" && s.deps.Session != nil {
		task, err := s.deps.Session.FetchTaskDetails(r.Context(), uuid)
		if err != nil {
			respondError(w, http.StatusBadGateway, "DETAILS_FAILED", err.Error())
			return
		}
		respondOK(w, task)
		return
	}
	task, ok := s.deps.Engine.Store().Snapshot().Get(uuid)
	if !ok {
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", "task not found")
		return
	}
	respondOK(w, task)
}

func (s *Server) handleTaskRevoke(w http.ResponseWriter, r *http.Request, uuid string) {
	if s.deps.Revoker == nil || !s.deps.Engine.CanRevoke(s.connected()) {
		respondError(w, http.StatusConflict, "CANNOT_REVOKE", "not connected or no incomplete tasks")
		return
	}
	out, err := s.deps.Revoker.Revoke(r.Context(), uuid)
	if err != nil {
		switch {
		case correlator.IsTimeout(err):
			respondError(w, http.StatusGatewayTimeout, "REVOKE_TIMEOUT", err.Error())
		case errors.Is(err, correlator.ErrClosed):
			respondError(w, http.StatusServiceUnavailable, "API_CLOSED", err.Error())
		default:
			if fe, ok := correlator.AsFailure(err); ok {
				writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": map[string]any{"code": "REVOKE_FAILED", "message": fe.Error(), "payload": fe.Payload}})
				return
			}
			respondError(w, http.StatusBadGateway, "REVOKE_FAILED", err.Error())
		}
		return
	}
	respondOK(w, map[string]any{"uuid": uuid, "result": out})
}

// handleTaskFields asks the server for the named fields of every task and
// merges the reply.
func (s *Server) handleTaskFields(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		respondError(w, http.StatusServiceUnavailable, "NO_SESSION", "no live session")
		return
	}
	var req struct {
		Fields []string `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	fields := make([]string, 0, len(req.Fields))
	for _, f := range req.Fields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_FIELDS", "fields are required")
		return
	}
	snap, err := s.deps.Session.FetchTaskFields(r.Context(), fields)
	if err != nil {
		respondError(w, http.StatusBadGateway, "FIELDS_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"fields": fields, "tasks": snap.Len()})
}
