package graph

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"firexview/cli/internal/metrics"
)

type Options struct {
	Metrics *metrics.Collectors
}

// Store holds the authoritative task graph. Writers are serialized; readers
// load the current snapshot without locking.
type Store struct {
	metrics *metrics.Collectors

	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func NewStore(opts Options) *Store {
	s := &Store{metrics: opts.Metrics}
	s.cur.Store(Empty())
	return s
}

func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

// Replace swaps the whole graph. The map is copied.
func (s *Store) Replace(tasks map[string]Task) *Snapshot {
	next := newSnapshot(maps.Clone(tasks))
	s.mu.Lock()
	s.cur.Store(next)
	s.mu.Unlock()
	s.metrics.GraphChanged(false, next.Len())
	return next
}

func (s *Store) Clear() *Snapshot {
	return s.Replace(nil)
}

// Merge overlays delta onto the current graph and publishes the result as a
// new snapshot. Unknown uuids are inserted. Fields that fail to decode are
// skipped; the rest of the delta still applies and the errors are returned.
func (s *Store) Merge(delta Delta) (*Snapshot, error) {
	s.mu.Lock()
	prev := s.cur.Load()
	if len(delta) == 0 {
		s.mu.Unlock()
		return prev, nil
	}
	tasks := make(map[string]Task, len(prev.tasks)+len(delta))
	maps.Copy(tasks, prev.tasks)
	var errs []error
	for _, uuid := range sortedKeys(delta) {
		base, ok := tasks[uuid]
		if !ok {
			base = Task{UUID: uuid}
		}
		next, err := delta[uuid].Apply(base)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", uuid, err))
		}
		next.UUID = uuid
		tasks[uuid] = next
	}
	snap := newSnapshot(tasks)
	s.cur.Store(snap)
	s.mu.Unlock()

	s.metrics.GraphChanged(true, snap.Len())
	return snap, errors.Join(errs...)
}
