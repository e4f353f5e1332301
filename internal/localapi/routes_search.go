package localapi

import (
	"net/http"
)

func (s *Server) registerSearchRoutes() {
	s.mux.HandleFunc("/api/v1/search", s.handleSearch)
	s.mux.HandleFunc("/api/v1/search/previous", s.handleSearchPrevious)
	s.mux.HandleFunc("/api/v1/search/close", s.handleSearchClose)
	s.mux.HandleFunc("/api/v1/search/toggle", s.handleSearchToggle)
}

type searchResponse struct {
	Term          string   `json:"term"`
	ResultUUIDs   []string `json:"resultUuids"`
	SelectedIndex int      `json:"selectedIndex"`
	IsOpen        bool     `json:"isOpen"`
	Focused       string   `json:"focusedTaskUuid"`
}

func (s *Server) searchResponse() searchResponse {
	st := s.deps.Engine.SearchState()
	return searchResponse{
		Term:          st.Term,
		ResultUUIDs:   st.ResultUUIDs,
		SelectedIndex: st.SelectedIndex,
		IsOpen:        st.IsOpen,
		Focused:       s.deps.Engine.FocusedTaskUUID(),
	}
}

// handleSearch reads the current state on GET and submits a term on POST.
// Submitting the current term again moves to the next result.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondOK(w, s.searchResponse())
	case http.MethodPost:
		q := r.URL.Query()
		term := q.Get("term")
		if term == "" {
			respondError(w, http.StatusBadRequest, "INVALID_TERM", "term is required")
			return
		}
		uncollapsed := s.deps.FindUncollapsed
		switch q.Get("uncollapsed") {
		case "1":
			uncollapsed = true
		case "0":
			uncollapsed = false
		}
		s.deps.Engine.Search(term, uncollapsed)
		respondOK(w, s.searchResponse())
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleSearchPrevious(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	s.deps.Engine.PreviousSearchResult()
	respondOK(w, s.searchResponse())
}

func (s *Server) handleSearchClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	s.deps.Engine.CloseSearch()
	respondOK(w, s.searchResponse())
}

// handleSearchToggle flips isOpen only; focus and results are untouched.
func (s *Server) handleSearchToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	s.deps.Engine.ToggleSearchOpen()
	respondOK(w, s.searchResponse())
}
