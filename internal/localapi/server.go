package localapi

import (
	"context"
	"encoding/json"
	"net/http"

	"firexview/cli/internal/graph"
	"firexview/cli/internal/query"
)

type Session interface {
	Connected() bool
	Metadata() graph.RunMetadata
	FetchTaskDetails(ctx context.Context, uuid string) (graph.Task, error)
	FetchTaskFields(ctx context.Context, fields []string) (*graph.Snapshot, error)
	NodeSizes() *graph.NodeSizes
}

type Revoker interface {
	Revoke(ctx context.Context, uuid string) (json.RawMessage, error)
}

type Deps struct {
	Engine          *query.Engine
	Session         Session
	Revoker         Revoker
	FindUncollapsed bool
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
}

func NewServer(deps Deps) *Server {
	if deps.Engine == nil {
		deps.Engine = query.NewEngine(query.Deps{})
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRunRoutes()
	s.registerTaskRoutes()
	s.registerSearchRoutes()
	s.registerViewRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
