package graph

import "strings"

type State string

const (
	StateReceived   State = "task-received"
	StateBlocked    State = "task-blocked"
	StateUnblocked  State = "task-unblocked"
	StateStarted    State = "task-started"
	StateSucceeded  State = "task-succeeded"
	StateFailed     State = "task-failed"
	StateRevoked    State = "task-revoked"
	StateIncomplete State = "task-incomplete"
)

var terminalStates = map[State]struct{}{
	StateSucceeded:  {},
	StateFailed:     {},
	StateRevoked:    {},
	StateIncomplete: {},
}

// Normalize maps short forms such as "succeeded" onto the task- prefixed
// names the server sends.
func (s State) Normalize() State {
	v := strings.ToLower(strings.TrimSpace(string(s)))
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "task-") {
		v = "task-" + v
	}
	return State(v)
}

// IsComplete reports whether the task reached a terminal state. Unknown and
// empty states count as still running.
func (s State) IsComplete() bool {
	_, ok := terminalStates[s.Normalize()]
	return ok
}
