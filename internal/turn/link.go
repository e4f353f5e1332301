package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("link is not connected")

const defaultRetryDelay = 500 * time.Millisecond

type LinkOptions struct {
	URL          string
	Dialer       Dialer
	OnText       func(string)
	OnConnect    func()
	OnDisconnect func(error)
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// Link keeps one socket to URL alive, redialing after each drop until the
// run context ends. Connect and disconnect are reported through the
// callbacks only; nothing in flight is failed on a drop.
type Link struct {
	opts LinkOptions

	mu     sync.RWMutex
	client *WSClient
}

func NewLink(opts LinkOptions) *Link {
	if opts.Dialer == nil {
		opts.Dialer = RealDialer{}
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts.URL = strings.TrimSpace(opts.URL)
	return &Link{opts: opts}
}

func (l *Link) URL() string {
	return l.opts.URL
}

func (l *Link) Run(ctx context.Context) error {
	logger := l.opts.Logger
	for {
		if ctx.Err() != nil {
			return nil
		}

		sock, err := l.opts.Dialer.Dial(ctx, l.opts.URL)
		if err != nil {
			logger.Warn("dial failed", "url", l.opts.URL, "err", err)
			if !sleepCtx(ctx, l.opts.RetryDelay) {
				return nil
			}
			continue
		}
		logger.Info("connected", "url", l.opts.URL)

		client := NewWSClient(sock)
		client.OnText(l.opts.OnText)
		l.setClient(client)
		if l.opts.OnConnect != nil {
			l.opts.OnConnect()
		}

		runErr := client.Run(ctx)
		l.setClient(nil)
		_ = client.Close()
		if l.opts.OnDisconnect != nil {
			l.opts.OnDisconnect(runErr)
		}
		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			logger.Warn("connection ended, reconnecting", "err", runErr)
		} else {
			logger.Info("connection ended, reconnecting")
		}
		if !sleepCtx(ctx, l.opts.RetryDelay) {
			return nil
		}
	}
}

func (l *Link) Send(ctx context.Context, text string) error {
	l.mu.RLock()
	client := l.client
	l.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(ctx, text)
}

func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client != nil
}

func (l *Link) setClient(c *WSClient) {
	l.mu.Lock()
	l.client = c
	l.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
