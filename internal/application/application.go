package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"firexview/cli/internal/api"
	"firexview/cli/internal/config"
	"firexview/cli/internal/graph"
	"firexview/cli/internal/lifecycle"
	"firexview/cli/internal/livebridge"
	"firexview/cli/internal/localapi"
	"firexview/cli/internal/logging"
	"firexview/cli/internal/metrics"
	"firexview/cli/internal/query"
	"firexview/cli/internal/turn"
)

const defaultProgressInterval = 5 * time.Second

var ErrNothingToRevoke = errors.New("no incomplete tasks to revoke or not connected")

// Application owns one viewer process: the api handle, the session that
// keeps the graph store current, and the query engine over it.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	mgr      *lifecycle.Manager
	handle   *api.Handle
	session  *livebridge.Session
	engine   *query.Engine

	syncedOnce sync.Once
	synced     chan struct{}
}

func StartApplication(_ context.Context, opts StartOptions) (*Application, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("server url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = turn.RealDialer{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		mgr:      lifecycle.NewManager(lifecycle.Options{Logger: logging.Module(logger, "lifecycle")}),
		synced:   make(chan struct{}),
	}
	store := graph.NewStore(graph.Options{Metrics: m})
	app.handle = api.NewHandle(api.HandleOptions{
		Dialer:  dialer,
		Logger:  logging.Module(logger, "api"),
		Metrics: m,
	})
	app.session = livebridge.New(livebridge.Options{
		Source:    app.handle,
		Store:     store,
		NodeSizes: graph.NewNodeSizes(),
		Logger:    logging.Module(logger, "livebridge"),
		OnSynced: func(*graph.Snapshot) {
			app.syncedOnce.Do(func() { close(app.synced) })
		},
	})
	app.engine = query.NewEngine(query.Deps{Store: store, Root: app.session})

	app.mgr.AddRun("session", app.session.Run)
	app.mgr.AddRun("api", func(ctx context.Context) error {
		err := app.handle.Reconnect(ctx, api.Config{
			Backend:       cfg.APIBackend,
			URL:           cfg.ServerURL,
			RevokeTimeout: cfg.RevokeTimeout,
			OnConnect:     app.session.OnConnect,
			OnDisconnect:  app.session.OnDisconnect,
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
	app.mgr.AddShutdown("close-api", func(context.Context) error {
		app.handle.Close()
		return nil
	})
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		app.addHTTPServer(addr)
	}
	return app, nil
}

// addHTTPServer serves /metrics and the local query api on addr.
func (a *Application) addHTTPServer(addr string) {
	local := localapi.NewServer(localapi.Deps{
		Engine:          a.engine,
		Session:         a.session,
		Revoker:         a.handle,
		FindUncollapsed: a.cfg.FindUncollapsed,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	mux.Handle("/", local.Handler())
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.mgr.AddRun("http-server", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		a.logger.Info("http listening", "addr", addr)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

func (a *Application) Engine() *query.Engine {
	return a.engine
}

func (a *Application) Session() *livebridge.Session {
	return a.session
}

func (a *Application) Handle() *api.Handle {
	return a.handle
}

func (a *Application) Registry() *prometheus.Registry {
	return a.registry
}

// Watch runs until ctx ends, logging graph progress at a fixed interval.
func (a *Application) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	a.mgr.AddRun("progress", func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				snap := a.engine.Store().Snapshot()
				a.logger.Info("graph progress",
					"tasks", snap.Len(),
					"root_uuid", a.engine.ResolveRoot(),
					"incomplete", a.engine.HasIncompleteTasks(),
					"connected", a.session.Connected(),
				)
			}
		}
	})
	return a.mgr.StartAndWait(ctx)
}

// RunOnce waits for the first full graph load, runs fn, then stops.
func (a *Application) RunOnce(ctx context.Context, name string, fn func(context.Context) error) error {
	a.mgr.AddMain(name, func(ctx context.Context) error {
		select {
		case <-a.synced:
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn(ctx)
	})
	return a.mgr.StartAndWait(ctx)
}

// Tree returns the active view, narrowed to root when it is in the graph.
func (a *Application) Tree(ctx context.Context, root string) ([]graph.Task, error) {
	var out []graph.Task
	err := a.RunOnce(ctx, "tree", func(context.Context) error {
		a.engine.SelectRoot(root)
		out = a.engine.ActiveView()
		return nil
	})
	return out, err
}

func (a *Application) Search(ctx context.Context, term string) ([]graph.Task, error) {
	var out []graph.Task
	err := a.RunOnce(ctx, "search", func(context.Context) error {
		res := a.engine.Search(term, a.cfg.FindUncollapsed)
		snap := a.engine.Store().Snapshot()
		for _, uuid := range res.ResultUUIDs {
			if t, ok := snap.Get(uuid); ok {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (a *Application) Revoke(ctx context.Context, uuid string) (json.RawMessage, error) {
	var out json.RawMessage
	err := a.RunOnce(ctx, "revoke", func(ctx context.Context) error {
		if !a.engine.CanRevoke(a.session.Connected()) {
			return ErrNothingToRevoke
		}
		res, err := a.handle.Revoke(ctx, uuid)
		if err != nil {
			return fmt.Errorf("revoke %s: %w", uuid, err)
		}
		out = res
		return nil
	})
	return out, err
}
