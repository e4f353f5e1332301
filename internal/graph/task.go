package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
)

// Task is one node of the run graph. Values are shared between snapshots and
// must be treated as read-only.
type Task struct {
	UUID                string
	ParentID            *string
	Name                string
	State               State
	Exception           string
	Hostname            string
	TaskNum             *int
	FlameData           json.RawMessage
	FlameAdditionalData string
	// Extra holds every field this client does not model, as sent.
	Extra map[string]json.RawMessage
}

const (
	fieldUUID                = "uuid"
	fieldParentID            = "parent_id"
	fieldName                = "name"
	fieldState               = "state"
	fieldException           = "exception"
	fieldHostname            = "hostname"
	fieldTaskNum             = "task_num"
	fieldFlameData           = "flame_data"
	fieldFlameAdditionalData = "flame_additional_data"
)

func (t Task) IsRoot() bool {
	return t.ParentID == nil
}

func (t Task) Parent() string {
	if t.ParentID == nil {
		return ""
	}
	return *t.ParentID
}

// Num returns task_num, or -1 when the producer has not assigned one yet.
func (t Task) Num() int {
	if t.TaskNum == nil {
		return -1
	}
	return *t.TaskNum
}

// Patch is a sparse set of task fields keyed by wire name. Only fields
// present in the patch are written when it is applied.
type Patch map[string]json.RawMessage

// Apply overlays p onto base field by field. A task_num already set on base
// is never replaced. Fields that fail to decode are skipped and reported.
func (p Patch) Apply(base Task) (Task, error) {
	out := base
	var errs []error
	extraCopied := false
	for _, key := range sortedKeys(p) {
		raw := p[key]
		var err error
		switch key {
		case fieldUUID:
			var v string
			if err = json.Unmarshal(raw, &v); err == nil && v != "" {
				out.UUID = v
			}
		case fieldParentID:
			var v *string
			if err = json.Unmarshal(raw, &v); err == nil {
				out.ParentID = v
			}
		case fieldName:
			err = decodeString(raw, &out.Name)
		case fieldState:
			var v string
			if err = decodeString(raw, &v); err == nil {
				out.State = State(v)
			}
		case fieldException:
			err = decodeLoose(raw, &out.Exception)
		case fieldHostname:
			err = decodeString(raw, &out.Hostname)
		case fieldTaskNum:
			if out.TaskNum != nil {
				continue
			}
			var v *int
			if err = json.Unmarshal(raw, &v); err == nil {
				out.TaskNum = v
			}
		case fieldFlameData:
			out.FlameData = append(json.RawMessage(nil), raw...)
		case fieldFlameAdditionalData:
			err = decodeLoose(raw, &out.FlameAdditionalData)
		default:
			if !extraCopied {
				out.Extra = maps.Clone(base.Extra)
				if out.Extra == nil {
					out.Extra = map[string]json.RawMessage{}
				}
				extraCopied = true
			}
			out.Extra[key] = append(json.RawMessage(nil), raw...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
		}
	}
	return out, errors.Join(errs...)
}

// decodeString accepts a JSON string or null (empty).
func decodeString(raw json.RawMessage, dst *string) error {
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if v == nil {
		*dst = ""
		return nil
	}
	*dst = *v
	return nil
}

// decodeLoose keeps non-string values in their JSON text form so free-text
// fields stay searchable whatever the producer sent.
func decodeLoose(raw json.RawMessage, dst *string) error {
	if err := decodeString(raw, dst); err == nil {
		return nil
	}
	if !json.Valid(raw) {
		return errors.New("invalid json")
	}
	*dst = string(raw)
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+9)
	for k, v := range t.Extra {
		out[k] = v
	}
	out[fieldUUID] = t.UUID
	out[fieldParentID] = t.ParentID
	out[fieldName] = t.Name
	out[fieldState] = t.State
	out[fieldHostname] = t.Hostname
	if t.Exception != "" {
		out[fieldException] = t.Exception
	}
	if t.TaskNum != nil {
		out[fieldTaskNum] = *t.TaskNum
	}
	if len(t.FlameData) > 0 {
		out[fieldFlameData] = t.FlameData
	}
	if t.FlameAdditionalData != "" {
		out[fieldFlameAdditionalData] = t.FlameAdditionalData
	}
	return json.Marshal(out)
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var p Patch
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	out, err := p.Apply(Task{})
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// Delta maps task uuids to sparse patches, the shape of a tasks-update push.
type Delta map[string]Patch

func ParseDelta(raw []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseTasks decodes a full uuid -> task mapping such as a graph-state reply.
func ParseTasks(raw []byte) (map[string]Task, error) {
	d, err := ParseDelta(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Task, len(d))
	var errs []error
	for uuid, p := range d {
		t, err := p.Apply(Task{UUID: uuid})
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", uuid, err))
		}
		t.UUID = uuid
		out[uuid] = t
	}
	return out, errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
