package protocol

import (
	"strings"
	"time"
)

const (
	OpSendRunMetadata   = "send-run-metadata"
	OpSendGraphState    = "send-graph-state"
	OpSendTaskDetails   = "send-task-details"
	OpSendGraphFields   = "send-graph-fields"
	OpRevokeTask        = "revoke-task"
	OpRunMetadata       = "run-metadata"
	OpGraphState        = "graph-state"
	OpGraphFields       = "graph-fields"
	OpRevokeSuccess     = "revoke-success"
	OpRevokeFailed      = "revoke-failed"
	OpTasksUpdate       = "tasks-update"
	taskDetailsOpPrefix = "task-details-"
)

const DefaultRevokeTimeout = 10 * time.Second

// Exchange describes one correlated request: the outbound op, the op that
// settles it successfully, an optional failure op and an optional timeout.
type Exchange struct {
	Op        string
	SuccessOp string
	FailureOp string
	Timeout   time.Duration
}

func (e Exchange) HasFailure() bool {
	return strings.TrimSpace(e.FailureOp) != ""
}

func (e Exchange) HasTimeout() bool {
	return e.Timeout > 0
}

func RunMetadataExchange() Exchange {
	return Exchange{Op: OpSendRunMetadata, SuccessOp: OpRunMetadata}
}

func GraphStateExchange() Exchange {
	return Exchange{Op: OpSendGraphState, SuccessOp: OpGraphState}
}

func TaskDetailsExchange(uuid string) Exchange {
	return Exchange{Op: OpSendTaskDetails, SuccessOp: TaskDetailsOp(uuid)}
}

func GraphFieldsExchange() Exchange {
	return Exchange{Op: OpSendGraphFields, SuccessOp: OpGraphFields}
}

func RevokeExchange(timeout time.Duration) Exchange {
	if timeout <= 0 {
		timeout = DefaultRevokeTimeout
	}
	return Exchange{
		Op:        OpRevokeTask,
		SuccessOp: OpRevokeSuccess,
		FailureOp: OpRevokeFailed,
		Timeout:   timeout,
	}
}

func TaskDetailsOp(uuid string) string {
	return taskDetailsOpPrefix + strings.TrimSpace(uuid)
}
