package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"firexview/cli/internal/correlator"
	"firexview/cli/internal/graph"
	"firexview/cli/internal/metrics"
	"firexview/cli/internal/protocol"
	"firexview/cli/internal/turn"
)

const BackendWebSocket = "websocket"

var ErrNoAccessor = errors.New("no api accessor installed")

// Accessor is one live connection to a run server.
type Accessor interface {
	Run(ctx context.Context) error
	Connected() bool
	GetRunMetadata(ctx context.Context) (graph.RunMetadata, error)
	GetTaskGraph(ctx context.Context) (map[string]graph.Task, error)
	FetchTaskDetails(ctx context.Context, uuid string) (graph.Patch, error)
	FetchTaskFields(ctx context.Context, fields []string) (graph.Delta, error)
	Revoke(ctx context.Context, uuid string) (json.RawMessage, error)
	StartLiveUpdate(handler func(json.RawMessage))
	StopLiveUpdate()
	Cleanup()
}

type Config struct {
	Backend       string
	URL           string
	RevokeTimeout time.Duration
	RetryDelay    time.Duration
	OnConnect     func()
	OnDisconnect  func(error)
}

type wsAccessor struct {
	link          *turn.Link
	corr          *correlator.Correlator
	revokeTimeout time.Duration
}

func newWSAccessor(cfg Config, dialer turn.Dialer, logger *slog.Logger, m *metrics.Collectors) *wsAccessor {
	a := &wsAccessor{revokeTimeout: cfg.RevokeTimeout}
	a.link = turn.NewLink(turn.LinkOptions{
		URL:          cfg.URL,
		Dialer:       dialer,
		RetryDelay:   cfg.RetryDelay,
		OnConnect:    cfg.OnConnect,
		OnDisconnect: cfg.OnDisconnect,
		Logger:       logger.With("module", "link"),
		OnText: func(text string) {
			a.corr.Dispatch(text)
		},
	})
	a.corr = correlator.New(a.link, correlator.Options{
		Logger:  logger.With("module", "correlator"),
		Metrics: m,
	})
	return a
}

func (a *wsAccessor) Run(ctx context.Context) error {
	return a.link.Run(ctx)
}

func (a *wsAccessor) Connected() bool {
	return a.link.Connected()
}

func (a *wsAccessor) GetRunMetadata(ctx context.Context) (graph.RunMetadata, error) {
	raw, err := a.corr.Do(ctx, protocol.RunMetadataExchange(), nil)
	if err != nil {
		return graph.RunMetadata{}, err
	}
	md, err := graph.ParseRunMetadata(raw)
	if err != nil {
		return graph.RunMetadata{}, fmt.Errorf("decode run metadata: %w", err)
	}
	return md, nil
}

func (a *wsAccessor) GetTaskGraph(ctx context.Context) (map[string]graph.Task, error) {
	raw, err := a.corr.Do(ctx, protocol.GraphStateExchange(), nil)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return map[string]graph.Task{}, nil
	}
	tasks, err := graph.ParseTasks(raw)
	if err != nil {
		return nil, fmt.Errorf("decode graph state: %w", err)
	}
	return tasks, nil
}

func (a *wsAccessor) FetchTaskDetails(ctx context.Context, uuid string) (graph.Patch, error) {
	uuid = strings.TrimSpace(uuid)
	raw, err := a.corr.Do(ctx, protocol.TaskDetailsExchange(uuid), uuid)
	if err != nil {
		return nil, err
	}
	var p graph.Patch
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode task details %s: %w", uuid, err)
	}
	return p, nil
}

func (a *wsAccessor) FetchTaskFields(ctx context.Context, fields []string) (graph.Delta, error) {
	raw, err := a.corr.Do(ctx, protocol.GraphFieldsExchange(), fields)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return graph.Delta{}, nil
	}
	d, err := graph.ParseDelta(raw)
	if err != nil {
		return nil, fmt.Errorf("decode graph fields: %w", err)
	}
	return d, nil
}

func (a *wsAccessor) Revoke(ctx context.Context, uuid string) (json.RawMessage, error) {
	return a.corr.Do(ctx, protocol.RevokeExchange(a.revokeTimeout), strings.TrimSpace(uuid))
}

func (a *wsAccessor) StartLiveUpdate(handler func(json.RawMessage)) {
	a.corr.StartLiveUpdate(handler)
}

func (a *wsAccessor) StopLiveUpdate() {
	a.corr.StopLiveUpdate()
}

func (a *wsAccessor) Cleanup() {
	a.corr.Cleanup()
}

func isNull(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v == "" || v == "null"
}
