package correlator

import (
	"context"
	"encoding/json"
)

// Future is the one-shot result of a correlated exchange.
type Future struct {
	id     string
	op     string
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newFuture(id, op string) *Future {
	return &Future{id: id, op: op, done: make(chan struct{})}
}

func failedFuture(id, op string, err error) *Future {
	f := newFuture(id, op)
	f.resolve(nil, err)
	return f
}

func (f *Future) ID() string {
	return f.id
}

func (f *Future) Op() string {
	return f.op
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the exchange settles or ctx ends. Giving up on ctx does
// not deregister the exchange.
func (f *Future) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve must be called exactly once, by the settling path.
func (f *Future) resolve(result json.RawMessage, err error) {
	f.result = result
	f.err = err
	close(f.done)
}
