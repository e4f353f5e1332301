package query

import (
	"encoding/json"
	"strings"
	"sync"

	"firexview/cli/internal/graph"
)

// ChildrenIndex answers uuid -> ordered child uuids. It is owned by the
// layout side and may lag the newest merge.
type ChildrenIndex interface {
	ChildrenOf(uuid string) []string
}

// CollapseState exposes the collapse feature: the uuids currently hidden
// and, per visible representative, the uuids it covers.
type CollapseState interface {
	CollapsedUUIDs() []string
	CollapseGroups() map[string][]string
}

// RootSource supplies the run root from run metadata.
type RootSource interface {
	RunRootUUID() string
}

type Deps struct {
	Store    *graph.Store
	Children ChildrenIndex
	Collapse CollapseState
	Root     RootSource
}

type RunState struct {
	IsLeaf    bool        `json:"isLeaf"`
	State     graph.State `json:"state"`
	Exception string      `json:"exception,omitempty"`
}

type FlameSummary struct {
	UUID      string          `json:"uuid"`
	Name      string          `json:"name"`
	ParentID  *string         `json:"parent_id"`
	FlameData json.RawMessage `json:"flame_data,omitempty"`
}

// Engine derives views from the store's current snapshot. Apart from the
// selected root, the search state and the focused task it holds nothing;
// each call reads one snapshot and works on that.
type Engine struct {
	store    *graph.Store
	children ChildrenIndex
	collapse CollapseState
	root     RootSource

	mu           sync.Mutex
	selectedRoot string
	search       SearchState
	focused      string
}

func NewEngine(deps Deps) *Engine {
	store := deps.Store
	if store == nil {
		store = graph.NewStore(graph.Options{})
	}
	return &Engine{
		store:    store,
		children: deps.Children,
		collapse: deps.Collapse,
		root:     deps.Root,
	}
}

func (e *Engine) Store() *graph.Store {
	return e.store
}

// SelectRoot narrows the view to uuid's subtree. An empty uuid clears it.
func (e *Engine) SelectRoot(uuid string) {
	e.mu.Lock()
	e.selectedRoot = strings.TrimSpace(uuid)
	e.mu.Unlock()
}

func (e *Engine) SelectedRoot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedRoot
}

// ResolveRoot picks, in order: the selected root if it is in the graph, the
// run metadata root, the lowest task_num task without a parent. It returns
// "" when none applies.
func (e *Engine) ResolveRoot() string {
	return e.resolveRoot(e.store.Snapshot())
}

func (e *Engine) resolveRoot(snap *graph.Snapshot) string {
	if selected := e.SelectedRoot(); selected != "" && snap.Has(selected) {
		return selected
	}
	if e.root != nil {
		if uuid := strings.TrimSpace(e.root.RunRootUUID()); uuid != "" {
			return uuid
		}
	}
	for _, uuid := range snap.UUIDs() {
		if t, _ := snap.Get(uuid); t.IsRoot() {
			return uuid
		}
	}
	return ""
}

// activeUUIDs is the task_num ordered uuid list of the active view.
func (e *Engine) activeUUIDs(snap *graph.Snapshot) []string {
	root := e.resolveRoot(snap)
	if root == "" || !snap.Has(root) {
		return snap.UUIDs()
	}
	return descendants(snap, root)
}

// ActiveView returns the tasks under the resolved root, or the whole graph
// when no root resolves to a present task.
func (e *Engine) ActiveView() []graph.Task {
	snap := e.store.Snapshot()
	uuids := e.activeUUIDs(snap)
	out := make([]graph.Task, 0, len(uuids))
	for _, uuid := range uuids {
		t, _ := snap.Get(uuid)
		out = append(out, t)
	}
	return out
}

func (e *Engine) TasksByUUID() map[string]graph.Task {
	snap := e.store.Snapshot()
	uuids := e.activeUUIDs(snap)
	if len(uuids) == snap.Len() {
		return snap.Map()
	}
	out := make(map[string]graph.Task, len(uuids))
	for _, uuid := range uuids {
		out[uuid], _ = snap.Get(uuid)
	}
	return out
}

func (e *Engine) AllTaskUUIDs() []string {
	uuids := e.activeUUIDs(e.store.Snapshot())
	return append([]string(nil), uuids...)
}

// Descendants returns root followed by every task reachable from it through
// parent_id edges, in task_num order.
func (e *Engine) Descendants(root string) []string {
	return descendants(e.store.Snapshot(), root)
}

// DescendantTasks is Descendants resolved to task records; uuids not in the
// graph are left out.
func (e *Engine) DescendantTasks(root string) []graph.Task {
	snap := e.store.Snapshot()
	uuids := descendants(snap, root)
	out := make([]graph.Task, 0, len(uuids))
	for _, uuid := range uuids {
		if t, ok := snap.Get(uuid); ok {
			out = append(out, t)
		}
	}
	return out
}

// RunStates projects every task to its leaf flag, state and exception. The
// leaf flag comes from the children index and may trail the graph.
func (e *Engine) RunStates() map[string]RunState {
	snap := e.store.Snapshot()
	children := e.children
	if children == nil {
		children = IndexChildren(snap)
	}
	out := make(map[string]RunState, snap.Len())
	snap.Range(func(t graph.Task) bool {
		out[t.UUID] = RunState{
			IsLeaf:    len(children.ChildrenOf(t.UUID)) == 0,
			State:     t.State,
			Exception: t.Exception,
		}
		return true
	})
	return out
}

func (e *Engine) TaskNames() map[string]string {
	snap := e.store.Snapshot()
	out := make(map[string]string, snap.Len())
	snap.Range(func(t graph.Task) bool {
		out[t.UUID] = t.Name
		return true
	})
	return out
}

func (e *Engine) FlameSummaries() map[string]FlameSummary {
	snap := e.store.Snapshot()
	out := make(map[string]FlameSummary, snap.Len())
	snap.Range(func(t graph.Task) bool {
		out[t.UUID] = FlameSummary{
			UUID:      t.UUID,
			Name:      t.Name,
			ParentID:  t.ParentID,
			FlameData: t.FlameData,
		}
		return true
	})
	return out
}

func (e *Engine) HasTasks() bool {
	return e.store.Snapshot().Len() > 0
}

func (e *Engine) HasIncompleteTasks() bool {
	incomplete := false
	e.store.Snapshot().Range(func(t graph.Task) bool {
		if !t.State.IsComplete() {
			incomplete = true
			return false
		}
		return true
	})
	return incomplete
}

// CanRevoke reports whether a revoke request makes sense right now.
func (e *Engine) CanRevoke(connected bool) bool {
	return connected && e.HasIncompleteTasks()
}
