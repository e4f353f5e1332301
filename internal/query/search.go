package query

import (
	"strings"

	"firexview/cli/internal/graph"
)

type SearchState struct {
	Term          string   `json:"term"`
	ResultUUIDs   []string `json:"resultUuids"`
	SelectedIndex int      `json:"selectedIndex"`
	IsOpen        bool     `json:"isOpen"`
}

// Selected returns the uuid under the cursor, or "" with no results.
func (s SearchState) Selected() string {
	if len(s.ResultUUIDs) == 0 {
		return ""
	}
	return s.ResultUUIDs[s.SelectedIndex]
}

func (s SearchState) clone() SearchState {
	s.ResultUUIDs = append([]string(nil), s.ResultUUIDs...)
	return s
}

// MatchUUIDs returns, in task_num order, every task whose name, hostname,
// flame_additional_data or uuid contains term, ignoring case.
func (e *Engine) MatchUUIDs(term string) []string {
	return matchUUIDs(e.store.Snapshot(), term)
}

func matchUUIDs(snap *graph.Snapshot, term string) []string {
	needle := strings.ToLower(term)
	out := make([]string, 0)
	snap.Range(func(t graph.Task) bool {
		for _, field := range []string{t.Name, t.Hostname, t.FlameAdditionalData, t.UUID} {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, t.UUID)
				break
			}
		}
		return true
	})
	return out
}

// Search submits term. A term different from the current one recomputes the
// results and selects the first; the same term moves the selection forward,
// wrapping at the end. With findUncollapsedAncestor, matches hidden inside a
// collapse group are replaced by the group's visible representative.
func (e *Engine) Search(term string, findUncollapsedAncestor bool) SearchState {
	e.mu.Lock()
	if term == e.search.Term {
		if n := len(e.search.ResultUUIDs); n > 0 {
			e.search.SelectedIndex = (e.search.SelectedIndex + 1) % n
			e.search.IsOpen = true
			e.focused = e.search.Selected()
		}
		out := e.search.clone()
		e.mu.Unlock()
		return out
	}
	e.mu.Unlock()

	snap := e.store.Snapshot()
	results := matchUUIDs(snap, term)
	if findUncollapsedAncestor {
		results = e.uncollapsedResults(snap, results)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.search = SearchState{
		Term:        term,
		ResultUUIDs: results,
		IsOpen:      true,
	}
	if len(results) > 0 {
		e.focused = results[0]
	}
	return e.search.clone()
}

func (e *Engine) uncollapsedResults(snap *graph.Snapshot, matches []string) []string {
	collapsed := map[string]struct{}{}
	if e.collapse != nil {
		collapsed = toSet(e.collapse.CollapsedUUIDs())
	}

	hiddenMatches := map[string]struct{}{}
	keep := map[string]struct{}{}
	for _, uuid := range matches {
		if _, ok := collapsed[uuid]; ok {
			hiddenMatches[uuid] = struct{}{}
			continue
		}
		keep[uuid] = struct{}{}
	}
	if len(hiddenMatches) > 0 && e.collapse != nil {
		for representative, covered := range e.collapse.CollapseGroups() {
			for _, uuid := range covered {
				if _, ok := hiddenMatches[uuid]; ok {
					keep[representative] = struct{}{}
					break
				}
			}
		}
	}

	out := make([]string, 0, len(keep))
	for _, uuid := range e.activeUUIDs(snap) {
		if _, ok := keep[uuid]; ok {
			out = append(out, uuid)
		}
	}
	return out
}

// PreviousSearchResult moves the selection back one, wrapping at the start.
// It does nothing without results.
func (e *Engine) PreviousSearchResult() SearchState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := len(e.search.ResultUUIDs); n > 0 {
		e.search.SelectedIndex = (e.search.SelectedIndex - 1 + n) % n
		e.focused = e.search.Selected()
	}
	return e.search.clone()
}

// CloseSearch hides the search and clears the focus. Term and results stay.
func (e *Engine) CloseSearch() {
	e.mu.Lock()
	e.search.IsOpen = false
	e.focused = ""
	e.mu.Unlock()
}

func (e *Engine) ToggleSearchOpen() {
	e.mu.Lock()
	e.search.IsOpen = !e.search.IsOpen
	e.mu.Unlock()
}

func (e *Engine) SearchState() SearchState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search.clone()
}

func (e *Engine) FocusedTaskUUID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// SetFocusedTaskUUID is used by the view side, which clears focus on pan or
// zoom.
func (e *Engine) SetFocusedTaskUUID(uuid string) {
	e.mu.Lock()
	e.focused = uuid
	e.mu.Unlock()
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, v := range items {
		out[v] = struct{}{}
	}
	return out
}
