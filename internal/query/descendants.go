package query

import "firexview/cli/internal/graph"

// ChildIndex is a parent uuid -> child uuids table built from one snapshot.
type ChildIndex map[string][]string

func (c ChildIndex) ChildrenOf(uuid string) []string {
	return c[uuid]
}

// IndexChildren groups tasks under their parent_id, children in task_num
// order. Parents that are not in the graph yet still get an entry.
func IndexChildren(snap *graph.Snapshot) ChildIndex {
	out := ChildIndex{}
	for _, uuid := range snap.UUIDs() {
		t, _ := snap.Get(uuid)
		if t.IsRoot() {
			continue
		}
		parent := t.Parent()
		out[parent] = append(out[parent], uuid)
	}
	return out
}

// descendants walks parent_id edges from root over this snapshot only. The
// result is root then the closure in task_num order, each uuid once.
func descendants(snap *graph.Snapshot, root string) []string {
	children := IndexChildren(snap)
	seen := map[string]struct{}{root: {}}
	queue := []string{root}
	found := make([]string, 0)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			found = append(found, child)
			queue = append(queue, child)
		}
	}
	return append([]string{root}, snap.Pick(found)...)
}
