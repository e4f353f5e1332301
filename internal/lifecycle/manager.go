package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

const defaultShutdownTimeout = 5 * time.Second

type job struct {
	name string
	run  func(context.Context) error
	main bool
}

type Options struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

// Manager runs background jobs until the parent context ends, a job fails,
// or a main job returns, then runs the shutdown jobs in reverse order.
type Manager struct {
	opts Options

	mu           sync.Mutex
	runJobs      []job
	shutdownJobs []job
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{opts: opts}
}

// AddRun registers a job that runs until its context is cancelled.
func (m *Manager) AddRun(name string, fn func(context.Context) error) {
	m.add(&m.runJobs, job{name: name, run: fn})
}

// AddMain registers a job whose return, with or without error, stops the
// whole manager. One-shot commands use it.
func (m *Manager) AddMain(name string, fn func(context.Context) error) {
	m.add(&m.runJobs, job{name: name, run: fn, main: true})
}

func (m *Manager) AddShutdown(name string, fn func(context.Context) error) {
	m.add(&m.shutdownJobs, job{name: name, run: fn})
}

func (m *Manager) add(list *[]job, j job) {
	if j.run == nil {
		return
	}
	m.mu.Lock()
	*list = append(*list, j)
	m.mu.Unlock()
}

func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	stopSignal := func() {}
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		stopSignal = stop
	}
	defer stopSignal()

	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	runJobs := m.snapshot(&m.runJobs)
	shutdownJobs := m.snapshot(&m.shutdownJobs)
	logger := m.opts.Logger

	errCh := make(chan error, len(runJobs))
	mainDone := make(chan struct{}, len(runJobs))
	var wg sync.WaitGroup
	for _, j := range runJobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug("job started", "job", j.name)
			err := j.run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("job failed", "job", j.name, "err", err)
				errCh <- fmt.Errorf("%s: %w", j.name, err)
				cancelRuns()
				return
			}
			logger.Debug("job stopped", "job", j.name)
			if j.main {
				mainDone <- struct{}{}
				cancelRuns()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		cancelRuns()
	case err := <-errCh:
		runErr = err
		cancelRuns()
	case <-mainDone:
	case <-doneCh:
	}

	<-doneCh
	if runErr == nil {
		select {
		case runErr = <-errCh:
		default:
		}
	}

	var shutdownErr error
	for i := len(shutdownJobs) - 1; i >= 0; i-- {
		j := shutdownJobs[i]
		sctx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
		err := j.run(sctx)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("shutdown job failed", "job", j.name, "err", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errors.Join(runErr, shutdownErr)
}

func (m *Manager) snapshot(list *[]job) []job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job, len(*list))
	copy(out, *list)
	return out
}
