package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDelta(t *testing.T, raw string) Delta {
	t.Helper()
	d, err := ParseDelta([]byte(raw))
	require.NoError(t, err)
	return d
}

func mustTasks(t *testing.T, raw string) map[string]Task {
	t.Helper()
	tasks, err := ParseTasks([]byte(raw))
	require.NoError(t, err)
	return tasks
}

func TestMerge_PartialUpdateKeepsOtherFields(t *testing.T) {
	s := NewStore(Options{})
	s.Replace(mustTasks(t, `{
		"A": {"parent_id": null, "task_num": 0, "state": "running"},
		"B": {"parent_id": "A", "task_num": 1, "state": "running"}
	}`))

	snap, err := s.Merge(mustDelta(t, `{"B": {"state": "succeeded"}}`))
	require.NoError(t, err)

	b, ok := snap.Get("B")
	require.True(t, ok)
	assert.Equal(t, State("succeeded"), b.State)
	assert.Equal(t, "A", b.Parent())
	assert.Equal(t, 1, b.Num())
}

func TestReplaceEmptyThenMergeEqualsDelta(t *testing.T) {
	raw := `{
		"x": {"uuid": "x", "parent_id": null, "name": "root", "task_num": 3, "flame_data": {"html": "<b>"}},
		"y": {"parent_id": "x", "hostname": "h1", "task_num": 4, "custom": [1, 2]}
	}`
	s := NewStore(Options{})
	s.Replace(mustTasks(t, `{"old": {"task_num": 1}}`))
	s.Replace(map[string]Task{})
	snap, err := s.Merge(mustDelta(t, raw))
	require.NoError(t, err)

	assert.Equal(t, mustTasks(t, raw), snap.Map())
}

func TestMerge_LaterDeltaWinsPerField(t *testing.T) {
	s := NewStore(Options{})
	deltas := []string{
		`{"t": {"name": "first", "hostname": "h1", "task_num": 7}}`,
		`{"t": {"name": "second"}}`,
		`{"t": {"state": "task-started", "flame_additional_data": "notes"}}`,
		`{"t": {"hostname": "h2", "state": "task-failed", "exception": "Boom"}}`,
	}
	for _, d := range deltas {
		_, err := s.Merge(mustDelta(t, d))
		require.NoError(t, err)
	}

	got, ok := s.Snapshot().Get("t")
	require.True(t, ok)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, "h2", got.Hostname)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "Boom", got.Exception)
	assert.Equal(t, "notes", got.FlameAdditionalData)
	assert.Equal(t, 7, got.Num())
}

func TestMerge_TaskNumIsImmutable(t *testing.T) {
	s := NewStore(Options{})
	_, err := s.Merge(mustDelta(t, `{"t": {"task_num": 2}}`))
	require.NoError(t, err)
	_, err = s.Merge(mustDelta(t, `{"t": {"task_num": 9}}`))
	require.NoError(t, err)

	got, _ := s.Snapshot().Get("t")
	assert.Equal(t, 2, got.Num())
}

func TestMerge_OldSnapshotIsUntouched(t *testing.T) {
	s := NewStore(Options{})
	before := s.Replace(mustTasks(t, `{"a": {"name": "a", "task_num": 0}}`))

	after, err := s.Merge(mustDelta(t, `{"a": {"name": "renamed"}, "b": {"task_num": 1}}`))
	require.NoError(t, err)

	assert.NotSame(t, before, after)
	assert.Equal(t, 1, before.Len())
	old, _ := before.Get("a")
	assert.Equal(t, "a", old.Name)
	assert.Equal(t, 2, after.Len())
	assert.Same(t, after, s.Snapshot())
}

func TestMerge_EmptyDeltaKeepsSnapshot(t *testing.T) {
	s := NewStore(Options{})
	before := s.Snapshot()
	after, err := s.Merge(Delta{})
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestMerge_DanglingParentIsTolerated(t *testing.T) {
	s := NewStore(Options{})
	snap, err := s.Merge(mustDelta(t, `{"child": {"parent_id": "later", "task_num": 5}}`))
	require.NoError(t, err)
	child, _ := snap.Get("child")
	assert.Equal(t, "later", child.Parent())
	assert.False(t, snap.Has("later"))

	snap, err = s.Merge(mustDelta(t, `{"later": {"parent_id": null, "task_num": 4}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "child"}, snap.UUIDs())
}

func TestMerge_BadFieldSkippedRestApplied(t *testing.T) {
	s := NewStore(Options{})
	snap, err := s.Merge(mustDelta(t, `{"t": {"task_num": "seven", "name": "ok"}}`))
	require.Error(t, err)
	got, ok := snap.Get("t")
	require.True(t, ok)
	assert.Equal(t, "ok", got.Name)
	assert.Nil(t, got.TaskNum)
}

func TestMerge_ExplicitNullParentMakesRoot(t *testing.T) {
	s := NewStore(Options{})
	s.Replace(mustTasks(t, `{"t": {"parent_id": "p"}}`))
	snap, err := s.Merge(mustDelta(t, `{"t": {"parent_id": null}}`))
	require.NoError(t, err)
	got, _ := snap.Get("t")
	assert.True(t, got.IsRoot())
}

func TestClear_EmptiesGraph(t *testing.T) {
	s := NewStore(Options{})
	s.Replace(mustTasks(t, `{"t": {}}`))
	assert.Equal(t, 0, s.Clear().Len())
}

func TestSnapshot_UUIDsOrderedByTaskNum(t *testing.T) {
	snap := NewSnapshot(mustTasks(t, `{
		"c": {"task_num": 2},
		"a": {"task_num": 10},
		"b": {"task_num": 1},
		"z": {},
		"y": {}
	}`))
	assert.Equal(t, []string{"b", "c", "a", "y", "z"}, snap.UUIDs())
	assert.Equal(t, []string{"b", "a"}, snap.Pick([]string{"a", "missing", "b", "a"}))
}

func TestTask_JSONKeepsUnknownFields(t *testing.T) {
	tasks := mustTasks(t, `{"t": {"parent_id": null, "task_num": 1, "actual_runtime": 12.5}}`)
	raw, err := json.Marshal(tasks["t"])
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(raw, &round))
	assert.Equal(t, 12.5, round["actual_runtime"])
	assert.Equal(t, "t", round["uuid"])
	assert.Nil(t, round["parent_id"])

	var back Task
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, tasks["t"], back)
}

func TestTask_NonStringFreeTextKept(t *testing.T) {
	tasks := mustTasks(t, `{"t": {"flame_additional_data": {"k": "v"}}}`)
	assert.JSONEq(t, `{"k":"v"}`, tasks["t"].FlameAdditionalData)
}

func TestState_Completion(t *testing.T) {
	assert.True(t, State("succeeded").IsComplete())
	assert.True(t, StateRevoked.IsComplete())
	assert.False(t, StateStarted.IsComplete())
	assert.False(t, State("").IsComplete())
	assert.Equal(t, StateFailed, State(" Failed ").Normalize())
}

func TestNodeSizes_AddAndClear(t *testing.T) {
	n := NewNodeSizes()
	n.Add(map[string]NodeSize{"a": {Width: 10, Height: 5}})
	first := n.All()
	n.Add(map[string]NodeSize{"b": {Width: 1, Height: 1}})
	assert.Len(t, first, 1)
	assert.Len(t, n.All(), 2)
	n.Clear()
	assert.Empty(t, n.All())
}
