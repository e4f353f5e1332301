package graph

import (
	"maps"
	"sort"
	"sync"
)

// Snapshot is an immutable point-in-time view of the graph. Every store
// mutation produces a new *Snapshot, so pointer equality means "unchanged".
type Snapshot struct {
	tasks map[string]Task

	orderOnce sync.Once
	order     []string
}

var emptySnapshot = &Snapshot{tasks: map[string]Task{}}

func Empty() *Snapshot {
	return emptySnapshot
}

func newSnapshot(tasks map[string]Task) *Snapshot {
	if tasks == nil {
		tasks = map[string]Task{}
	}
	return &Snapshot{tasks: tasks}
}

// NewSnapshot copies tasks into a standalone snapshot.
func NewSnapshot(tasks map[string]Task) *Snapshot {
	return newSnapshot(maps.Clone(tasks))
}

func (s *Snapshot) Len() int {
	return len(s.tasks)
}

func (s *Snapshot) Get(uuid string) (Task, bool) {
	t, ok := s.tasks[uuid]
	return t, ok
}

func (s *Snapshot) Has(uuid string) bool {
	_, ok := s.tasks[uuid]
	return ok
}

// UUIDs returns every uuid ordered by task_num. Tasks without a task_num
// sort last; ties break on uuid. The returned slice must not be modified.
func (s *Snapshot) UUIDs() []string {
	s.orderOnce.Do(func() {
		s.order = sortByTaskNum(s.tasks, sortedKeys(s.tasks))
	})
	return s.order
}

// Tasks returns every task in task_num order.
func (s *Snapshot) Tasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, uuid := range s.UUIDs() {
		out = append(out, s.tasks[uuid])
	}
	return out
}

func (s *Snapshot) Range(fn func(Task) bool) {
	for _, uuid := range s.UUIDs() {
		if !fn(s.tasks[uuid]) {
			return
		}
	}
}

// Map returns a copy of the uuid -> task mapping.
func (s *Snapshot) Map() map[string]Task {
	return maps.Clone(s.tasks)
}

// Pick returns the subset of uuids present in the snapshot, in task_num
// order, without duplicates.
func (s *Snapshot) Pick(uuids []string) []string {
	seen := make(map[string]struct{}, len(uuids))
	out := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		if _, ok := s.tasks[uuid]; !ok {
			continue
		}
		if _, dup := seen[uuid]; dup {
			continue
		}
		seen[uuid] = struct{}{}
		out = append(out, uuid)
	}
	return sortByTaskNum(s.tasks, out)
}

func sortByTaskNum(tasks map[string]Task, uuids []string) []string {
	sort.SliceStable(uuids, func(i, j int) bool {
		a, b := tasks[uuids[i]], tasks[uuids[j]]
		switch {
		case a.TaskNum != nil && b.TaskNum != nil:
			if *a.TaskNum != *b.TaskNum {
				return *a.TaskNum < *b.TaskNum
			}
		case a.TaskNum != nil:
			return true
		case b.TaskNum != nil:
			return false
		}
		return uuids[i] < uuids[j]
	})
	return uuids
}
