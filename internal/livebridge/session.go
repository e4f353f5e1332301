package livebridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"firexview/cli/internal/graph"
)

// Source is the request side of the api handle.
type Source interface {
	GetRunMetadata(ctx context.Context) (graph.RunMetadata, error)
	GetTaskGraph(ctx context.Context) (map[string]graph.Task, error)
	FetchTaskDetails(ctx context.Context, uuid string) (graph.Patch, error)
	FetchTaskFields(ctx context.Context, fields []string) (graph.Delta, error)
	StartLiveUpdate(handler func(json.RawMessage)) error
	StopLiveUpdate()
}

type Options struct {
	Source    Source
	Store     *graph.Store
	NodeSizes *graph.NodeSizes
	Logger    *slog.Logger
	// OnSynced runs after each full graph load, mainly for tests and the
	// CLI's one-shot commands.
	OnSynced func(*graph.Snapshot)
}

type linkEvent struct {
	connected bool
	err       error
}

// Session keeps the store in step with the connection: a connect loads run
// metadata and the full graph, then merges pushed updates; a disconnect
// clears the task data.
type Session struct {
	opts    Options
	events  chan linkEvent
	stopped chan struct{}
	stop    sync.Once

	connected atomic.Bool
	gen       atomic.Uint64

	mu       sync.RWMutex
	metadata graph.RunMetadata
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Store == nil {
		opts.Store = graph.NewStore(graph.Options{})
	}
	if opts.NodeSizes == nil {
		opts.NodeSizes = graph.NewNodeSizes()
	}
	return &Session{opts: opts, events: make(chan linkEvent, 16), stopped: make(chan struct{})}
}

func (s *Session) Store() *graph.Store {
	return s.opts.Store
}

func (s *Session) NodeSizes() *graph.NodeSizes {
	return s.opts.NodeSizes
}

// OnConnect and OnDisconnect are the link callbacks. They only queue; Run
// does the work, since the link cannot read replies until the callback
// returns.
func (s *Session) OnConnect() {
	s.connected.Store(true)
	s.enqueue(linkEvent{connected: true})
}

func (s *Session) OnDisconnect(err error) {
	s.connected.Store(false)
	s.enqueue(linkEvent{err: err})
}

// enqueue drops the event once Run has returned.
func (s *Session) enqueue(ev linkEvent) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Run handles link events until ctx ends. Each connect starts a sync that
// a later event cancels.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	cancelSync := context.CancelFunc(func() {})
	defer func() {
		s.stop.Do(func() { close(s.stopped) })
		cancelSync()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			cancelSync()
			s.mu.Lock()
			gen := s.gen.Add(1)
			if !ev.connected {
				s.opts.Source.StopLiveUpdate()
				s.ClearTaskData()
			}
			s.mu.Unlock()
			if !ev.connected {
				if ev.err != nil {
					s.opts.Logger.Warn("disconnected, task data cleared", "err", ev.err)
				} else {
					s.opts.Logger.Info("disconnected, task data cleared")
				}
				continue
			}
			syncCtx, cancel := context.WithCancel(ctx)
			cancelSync = cancel
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.sync(syncCtx, gen)
			}()
		}
	}
}

func (s *Session) sync(ctx context.Context, gen uint64) {
	logger := s.opts.Logger
	md, err := s.opts.Source.GetRunMetadata(ctx)
	if err != nil {
		logger.Warn("fetch run metadata failed", "err", err)
		return
	}
	tasks, err := s.opts.Source.GetTaskGraph(ctx)
	if err != nil {
		logger.Warn("fetch graph state failed", "err", err)
		return
	}

	// The gen check, Replace and StartLiveUpdate run under mu so a
	// disconnect lands either before the load or after live updates start.
	s.mu.Lock()
	if s.gen.Load() != gen {
		s.mu.Unlock()
		return
	}
	s.metadata = md
	snap := s.opts.Store.Replace(tasks)
	err = s.opts.Source.StartLiveUpdate(s.Apply)
	s.mu.Unlock()
	if err != nil {
		logger.Warn("start live updates failed", "err", err)
		return
	}
	logger.Info("graph loaded", "root_uuid", md.RootUUID, "tasks", snap.Len())
	if s.opts.OnSynced != nil {
		s.opts.OnSynced(snap)
	}
}

// Apply merges one tasks-update payload into the store.
func (s *Session) Apply(payload json.RawMessage) {
	delta, err := graph.ParseDelta(payload)
	if err != nil {
		s.opts.Logger.Warn("drop malformed live update", "err", err)
		return
	}
	snap, err := s.opts.Store.Merge(delta)
	if err != nil {
		s.opts.Logger.Warn("live update partially applied", "err", err)
	}
	s.opts.Logger.Debug("live update merged", "changed", len(delta), "tasks", snap.Len())
}

// RunRootUUID is the root_uuid of the current run's metadata.
func (s *Session) RunRootUUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata.RootUUID
}

func (s *Session) Metadata() graph.RunMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// ClearTaskData empties the graph and the node size table.
func (s *Session) ClearTaskData() {
	s.opts.Store.Clear()
	s.opts.NodeSizes.Clear()
}

// FetchTaskDetails loads the full record of one task and merges it.
func (s *Session) FetchTaskDetails(ctx context.Context, uuid string) (graph.Task, error) {
	uuid = strings.TrimSpace(uuid)
	patch, err := s.opts.Source.FetchTaskDetails(ctx, uuid)
	if err != nil {
		return graph.Task{}, err
	}
	snap, err := s.opts.Store.Merge(graph.Delta{uuid: patch})
	task, _ := snap.Get(uuid)
	return task, err
}

// FetchTaskFields loads the named fields for every task and merges them.
func (s *Session) FetchTaskFields(ctx context.Context, fields []string) (*graph.Snapshot, error) {
	delta, err := s.opts.Source.FetchTaskFields(ctx, fields)
	if err != nil {
		return s.opts.Store.Snapshot(), err
	}
	return s.opts.Store.Merge(delta)
}
