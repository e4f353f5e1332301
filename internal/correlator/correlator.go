package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"firexview/cli/internal/metrics"
	"firexview/cli/internal/protocol"
)

type Sender interface {
	Send(ctx context.Context, text string) error
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collectors
	NewID   func() string
}

type pendingExchange struct {
	id      string
	ex      protocol.Exchange
	future  *Future
	timer   *time.Timer
	started time.Time
}

// Correlator turns request/reply pairs on a shared channel into futures and
// fans push events out to the live update handler.
//
// Replies carrying an id settle the exchange with that id. Replies without an
// id settle the oldest pending exchange listening for their op.
type Correlator struct {
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Collectors
	newID   func() string

	mu      sync.Mutex
	pending map[string]*pendingExchange
	byOp    map[string][]string
	live    func(json.RawMessage)
	closed  bool
}

func New(sender Sender, opts Options) *Correlator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return "req_" + uuid.NewString() }
	}
	return &Correlator{
		sender:  sender,
		logger:  logger,
		metrics: opts.Metrics,
		newID:   newID,
		pending: map[string]*pendingExchange{},
		byOp:    map[string][]string{},
	}
}

// Request registers the exchange's listeners and timer, then sends the
// request frame. A nil payload sends no payload field. Exactly one of
// success, failure or timeout settles the returned future.
func (c *Correlator) Request(ctx context.Context, ex protocol.Exchange, payload any) *Future {
	id := c.newID()

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return failedFuture(id, ex.Op, fmt.Errorf("encode %s payload: %w", ex.Op, err))
		}
		raw = b
	}
	frame, err := protocol.Encode(protocol.Message{
		ID:      id,
		Type:    protocol.TypeRequest,
		Op:      ex.Op,
		Payload: raw,
	})
	if err != nil {
		return failedFuture(id, ex.Op, fmt.Errorf("encode %s frame: %w", ex.Op, err))
	}

	p := &pendingExchange{id: id, ex: ex, future: newFuture(id, ex.Op), started: time.Now()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedFuture(id, ex.Op, ErrClosed)
	}
	c.pending[id] = p
	c.byOp[ex.SuccessOp] = append(c.byOp[ex.SuccessOp], id)
	if ex.HasFailure() {
		c.byOp[ex.FailureOp] = append(c.byOp[ex.FailureOp], id)
	}
	if ex.HasTimeout() {
		p.timer = time.AfterFunc(ex.Timeout, func() {
			c.settle(id, metrics.OutcomeTimeout, nil, &TimeoutError{Op: ex.Op, After: ex.Timeout})
		})
	}
	c.mu.Unlock()
	c.metrics.ExchangeStarted()
	c.logger.Debug("exchange sent", "id", id, "op", ex.Op, "success_op", ex.SuccessOp)

	if err := c.sender.Send(ctx, string(frame)); err != nil {
		c.settle(id, metrics.OutcomeFailure, nil, fmt.Errorf("send %s: %w", ex.Op, err))
	}
	return p.future
}

// Do is Request followed by Await.
func (c *Correlator) Do(ctx context.Context, ex protocol.Exchange, payload any) (json.RawMessage, error) {
	return c.Request(ctx, ex, payload).Await(ctx)
}

// Dispatch routes one inbound frame. It is the link's text handler.
func (c *Correlator) Dispatch(text string) {
	msg, err := protocol.Decode([]byte(text))
	if err != nil {
		c.logger.Warn("drop undecodable frame", "err", err)
		return
	}
	if msg.Op == protocol.OpTasksUpdate {
		c.deliverLive(msg.Payload)
		return
	}

	c.mu.Lock()
	p := c.matchLocked(msg)
	c.mu.Unlock()
	if p == nil {
		c.metrics.LateResponse()
		c.logger.Debug("no pending exchange for reply", "id", msg.ID, "op", msg.Op)
		return
	}

	switch {
	case msg.Error != nil:
		c.settle(p.id, metrics.OutcomeFailure, nil, &FailureError{
			Op:      p.ex.Op,
			Payload: msg.Payload,
			Code:    msg.Error.Code,
			Message: msg.Error.Message,
		})
	case p.ex.HasFailure() && msg.Op == p.ex.FailureOp:
		c.settle(p.id, metrics.OutcomeFailure, nil, &FailureError{Op: p.ex.Op, Payload: msg.Payload})
	default:
		c.settle(p.id, metrics.OutcomeSuccess, msg.Payload, nil)
	}
}

func (c *Correlator) matchLocked(msg protocol.Message) *pendingExchange {
	if msg.ID != "" {
		if p, ok := c.pending[msg.ID]; ok {
			return p
		}
		return nil
	}
	ids := c.byOp[msg.Op]
	if len(ids) == 0 {
		return nil
	}
	return c.pending[ids[0]]
}

// settle is the single point where an exchange leaves the pending table.
// Whoever gets here first wins; later callers are no-ops.
func (c *Correlator) settle(id, outcome string, result json.RawMessage, err error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		if outcome != metrics.OutcomeTimeout {
			c.logger.Debug("exchange already settled", "id", id, "outcome", outcome)
		}
		return
	}
	c.removeLocked(p)
	c.mu.Unlock()

	c.finish(p, outcome, result, err)
}

func (c *Correlator) removeLocked(p *pendingExchange) {
	delete(c.pending, p.id)
	c.byOp[p.ex.SuccessOp] = removeID(c.byOp[p.ex.SuccessOp], p.id)
	if len(c.byOp[p.ex.SuccessOp]) == 0 {
		delete(c.byOp, p.ex.SuccessOp)
	}
	if p.ex.HasFailure() {
		c.byOp[p.ex.FailureOp] = removeID(c.byOp[p.ex.FailureOp], p.id)
		if len(c.byOp[p.ex.FailureOp]) == 0 {
			delete(c.byOp, p.ex.FailureOp)
		}
	}
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (c *Correlator) finish(p *pendingExchange, outcome string, result json.RawMessage, err error) {
	p.future.resolve(result, err)
	c.metrics.ExchangeSettled(p.ex.Op, outcome, time.Since(p.started))
	if err != nil {
		c.logger.Debug("exchange rejected", "id", p.id, "op", p.ex.Op, "outcome", outcome, "err", err)
		return
	}
	c.logger.Debug("exchange resolved", "id", p.id, "op", p.ex.Op)
}

// StartLiveUpdate installs the push handler. Installing again replaces it.
func (c *Correlator) StartLiveUpdate(handler func(json.RawMessage)) {
	c.mu.Lock()
	c.live = handler
	c.mu.Unlock()
}

func (c *Correlator) StopLiveUpdate() {
	c.mu.Lock()
	c.live = nil
	c.mu.Unlock()
}

func (c *Correlator) deliverLive(payload json.RawMessage) {
	c.mu.Lock()
	handler := c.live
	c.mu.Unlock()
	if handler == nil {
		return
	}
	c.metrics.LiveUpdate()
	handler(payload)
}

// Cleanup drops every listener. Exchanges still waiting are rejected with
// ErrClosed and later requests fail immediately.
func (c *Correlator) Cleanup() {
	c.mu.Lock()
	dropped := make([]*pendingExchange, 0, len(c.pending))
	for _, p := range c.pending {
		dropped = append(dropped, p)
	}
	for _, p := range dropped {
		c.removeLocked(p)
	}
	c.live = nil
	c.closed = true
	c.mu.Unlock()

	for _, p := range dropped {
		c.finish(p, metrics.OutcomeClosed, nil, ErrClosed)
	}
}

func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
