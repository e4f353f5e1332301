package localapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"firexview/cli/internal/graph"
)

func (s *Server) registerViewRoutes() {
	s.mux.HandleFunc("/api/v1/node-sizes", s.handleNodeSizes)
	s.mux.HandleFunc("/api/v1/focus", s.handleFocus)
}

// handleNodeSizes reads the node size table on GET. PUT merges a
// uuid -> {width, height} map reported by the layout side.
func (s *Server) handleNodeSizes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		respondError(w, http.StatusServiceUnavailable, "NO_SESSION", "no live session")
		return
	}
	sizes := s.deps.Session.NodeSizes()
	switch r.Method {
	case http.MethodGet:
		respondOK(w, sizes.All())
	case http.MethodPut:
		var req map[string]graph.NodeSize
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
		delete(req, "")
		sizes.Add(req)
		respondOK(w, sizes.All())
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req struct {
			UUID string `json:"uuid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
		s.deps.Engine.SetFocusedTaskUUID(strings.TrimSpace(req.UUID))
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	respondOK(w, map[string]any{"focusedTaskUuid": s.deps.Engine.FocusedTaskUUID()})
}
