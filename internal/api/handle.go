package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"firexview/cli/internal/graph"
	"firexview/cli/internal/metrics"
	"firexview/cli/internal/turn"
)

type HandleOptions struct {
	Dialer  turn.Dialer
	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

// Handle is the process-wide entry point to the active accessor. Reconnect
// swaps the accessor; callers keep the same Handle. Concurrent detail
// fetches for one uuid share a single request.
type Handle struct {
	opts    HandleOptions
	details singleflight.Group

	switchMu sync.Mutex

	mu     sync.RWMutex
	acc    Accessor
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHandle(opts HandleOptions) *Handle {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Handle{opts: opts}
}

// NewAccessor builds the accessor for cfg.Backend. It returns ErrNoAccessor
// for a backend it does not know.
func NewAccessor(cfg Config, dialer turn.Dialer, logger *slog.Logger, m *metrics.Collectors) (Accessor, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendWebSocket:
		return newWSAccessor(cfg, dialer, logger, m), nil
	default:
		return nil, ErrNoAccessor
	}
}

// Reconnect tears down the current accessor, then installs and starts one
// for cfg that lives until ctx ends or the next Reconnect. An unknown
// backend leaves no accessor installed.
func (h *Handle) Reconnect(ctx context.Context, cfg Config) error {
	h.switchMu.Lock()
	defer h.switchMu.Unlock()
	h.teardown()

	acc, err := NewAccessor(cfg, h.opts.Dialer, h.opts.Logger, h.opts.Metrics)
	if err != nil {
		h.opts.Logger.Error("unknown api backend", "backend", cfg.Backend, "err", err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.mu.Lock()
	h.acc = acc
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		if err := acc.Run(runCtx); err != nil {
			h.opts.Logger.Warn("accessor stopped", "err", err)
		}
	}()
	h.opts.Logger.Info("api accessor installed", "backend", cfg.Backend, "url", cfg.URL)
	return nil
}

// Close tears down the current accessor, if any.
func (h *Handle) Close() {
	h.switchMu.Lock()
	h.teardown()
	h.switchMu.Unlock()
}

// teardown runs without mu held: the link's disconnect callback may call
// back into the handle while Run unwinds.
func (h *Handle) teardown() {
	h.mu.Lock()
	acc, cancel, done := h.acc, h.cancel, h.done
	h.acc, h.cancel, h.done = nil, nil, nil
	h.mu.Unlock()
	if acc == nil {
		return
	}
	acc.Cleanup()
	cancel()
	<-done
}

func (h *Handle) current() (Accessor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.acc == nil {
		return nil, ErrNoAccessor
	}
	return h.acc, nil
}

func (h *Handle) Connected() bool {
	acc, err := h.current()
	return err == nil && acc.Connected()
}

func (h *Handle) GetRunMetadata(ctx context.Context) (graph.RunMetadata, error) {
	acc, err := h.current()
	if err != nil {
		return graph.RunMetadata{}, err
	}
	return acc.GetRunMetadata(ctx)
}

func (h *Handle) GetTaskGraph(ctx context.Context) (map[string]graph.Task, error) {
	acc, err := h.current()
	if err != nil {
		return nil, err
	}
	return acc.GetTaskGraph(ctx)
}

func (h *Handle) FetchTaskDetails(ctx context.Context, uuid string) (graph.Patch, error) {
	acc, err := h.current()
	if err != nil {
		return nil, err
	}
	uuid = strings.TrimSpace(uuid)
	// The shared fetch outlives any one caller; each caller only stops
	// waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := h.details.DoChan(uuid, func() (any, error) {
		return acc.FetchTaskDetails(shared, uuid)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(graph.Patch)), nil
	}
}

func (h *Handle) FetchTaskFields(ctx context.Context, fields []string) (graph.Delta, error) {
	acc, err := h.current()
	if err != nil {
		return nil, err
	}
	return acc.FetchTaskFields(ctx, fields)
}

func (h *Handle) Revoke(ctx context.Context, uuid string) (json.RawMessage, error) {
	acc, err := h.current()
	if err != nil {
		return nil, err
	}
	return acc.Revoke(ctx, uuid)
}

func (h *Handle) StartLiveUpdate(handler func(json.RawMessage)) error {
	acc, err := h.current()
	if err != nil {
		return err
	}
	acc.StartLiveUpdate(handler)
	return nil
}

func (h *Handle) StopLiveUpdate() {
	if acc, err := h.current(); err == nil {
		acc.StopLiveUpdate()
	}
}
