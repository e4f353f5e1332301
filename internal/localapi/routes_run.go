package localapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

type runResponse struct {
	RootUUID           string `json:"root_uuid"`
	ActiveRoot         string `json:"active_root"`
	SelectedRoot       string `json:"selected_root"`
	LogsDir            string `json:"logs_dir,omitempty"`
	Connected          bool   `json:"connected"`
	HasTasks           bool   `json:"has_tasks"`
	HasIncompleteTasks bool   `json:"has_incomplete_tasks"`
	CanRevoke          bool   `json:"can_revoke"`
}

func (s *Server) registerRunRoutes() {
	s.mux.HandleFunc("/api/v1/run", s.handleRun)
	s.mux.HandleFunc("/api/v1/run/root", s.handleSelectRoot)
}

func (s *Server) connected() bool {
	return s.deps.Session != nil && s.deps.Session.Connected()
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	e := s.deps.Engine
	resp := runResponse{
		ActiveRoot:         e.ResolveRoot(),
		SelectedRoot:       e.SelectedRoot(),
		Connected:          s.connected(),
		HasTasks:           e.HasTasks(),
		HasIncompleteTasks: e.HasIncompleteTasks(),
		CanRevoke:          e.CanRevoke(s.connected()),
	}
	if s.deps.Session != nil {
		md := s.deps.Session.Metadata()
		resp.RootUUID = md.RootUUID
		resp.LogsDir = md.LogsDir
	}
	respondOK(w, resp)
}

func (s *Server) handleSelectRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	var req struct {
		UUID string `json:"uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	s.deps.Engine.SelectRoot(strings.TrimSpace(req.UUID))
	respondOK(w, map[string]any{"selected_root": s.deps.Engine.SelectedRoot(), "active_root": s.deps.Engine.ResolveRoot()})
}
