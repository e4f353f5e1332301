package graph

import (
	"maps"
	"sync"
	"sync/atomic"
)

// NodeSize is the rendered size of a task node, reported by the layout side.
type NodeSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeSizes is a copy-on-write uuid -> size table kept alongside the graph
// and cleared with it.
type NodeSizes struct {
	mu  sync.Mutex
	cur atomic.Pointer[map[string]NodeSize]
}

func NewNodeSizes() *NodeSizes {
	n := &NodeSizes{}
	empty := map[string]NodeSize{}
	n.cur.Store(&empty)
	return n
}

func (n *NodeSizes) Add(sizes map[string]NodeSize) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := maps.Clone(*n.cur.Load())
	maps.Copy(next, sizes)
	n.cur.Store(&next)
}

func (n *NodeSizes) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	empty := map[string]NodeSize{}
	n.cur.Store(&empty)
}

// All returns the current table. It must not be modified.
func (n *NodeSizes) All() map[string]NodeSize {
	return *n.cur.Load()
}
