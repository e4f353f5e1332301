package turn

import (
	"context"
	"errors"
	"io"
	"sync"
)

type Socket interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

type WSClient struct {
	sock   Socket
	onText func(string)
}

type onTextSetter interface {
	SetOnText(func(string))
}

func NewWSClient(sock Socket) *WSClient {
	return &WSClient{sock: sock}
}

func (c *WSClient) OnText(fn func(string)) {
	c.onText = fn
	if s, ok := c.sock.(onTextSetter); ok {
		s.SetOnText(fn)
	}
}

// Run reads frames until the socket ends. A clean close or a cancelled
// context returns nil.
func (c *WSClient) Run(ctx context.Context) error {
	for {
		text, err := c.sock.ReadText(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if c.onText != nil {
			c.onText(text)
		}
	}
}

func (c *WSClient) Send(ctx context.Context, text string) error {
	return c.sock.WriteText(ctx, text)
}

func (c *WSClient) Close() error {
	return c.sock.Close()
}

// FakeSocket is an in-memory Socket. Frames pushed with EmitText are read by
// ReadText; frames written by the client are recorded and passed to OnWrite.
type FakeSocket struct {
	onText func(string)
	readCh chan string

	mu      sync.Mutex
	written []string
	onWrite func(string)
	writeCh chan string
	once    sync.Once
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		readCh:  make(chan string, 64),
		writeCh: make(chan string, 64),
	}
}

func (f *FakeSocket) SetOnText(fn func(string)) {
	f.onText = fn
}

// OnWrite installs a hook that sees every written frame, typically used to
// script server replies.
func (f *FakeSocket) OnWrite(fn func(string)) {
	f.mu.Lock()
	f.onWrite = fn
	f.mu.Unlock()
}

func (f *FakeSocket) EmitText(text string) {
	if f.onText != nil {
		f.onText(text)
		return
	}
	f.readCh <- text
}

func (f *FakeSocket) ReadText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-f.readCh:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

func (f *FakeSocket) WriteText(ctx context.Context, text string) error {
	f.mu.Lock()
	f.written = append(f.written, text)
	hook := f.onWrite
	f.mu.Unlock()
	select {
	case f.writeCh <- text:
	default:
	}
	if hook != nil {
		hook(text)
	}
	return nil
}

func (f *FakeSocket) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	copy(out, f.written)
	return out
}

// Writes streams written frames; frames are dropped when nobody drains it.
func (f *FakeSocket) Writes() <-chan string {
	return f.writeCh
}

func (f *FakeSocket) Close() error {
	f.once.Do(func() {
		close(f.readCh)
	})
	return nil
}

// FakeDialer hands out queued sockets in order.
type FakeDialer struct {
	mu      sync.Mutex
	sockets []Socket
	urls    []string
	err     error
}

func NewFakeDialer(sockets ...Socket) *FakeDialer {
	return &FakeDialer{sockets: sockets}
}

func (d *FakeDialer) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *FakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.sockets) == 0 {
		return nil, errors.New("no fake socket queued")
	}
	sock := d.sockets[0]
	d.sockets = d.sockets[1:]
	return sock, nil
}

func (d *FakeDialer) DialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.urls))
	copy(out, d.urls)
	return out
}
