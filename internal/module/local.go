package module

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// ErrClosed is returned by Local once it is closed.
var ErrClosed = errors.New("local transport closed")

// Local connects an in-process JS facade to the table. It is the service's
// emitter: emitted events queue without bound until the facade reads them
// with Next, so an emitting native thread never blocks on the facade.
type Local struct {
	mu     sync.Mutex
	table  *Table
	queue  []protocol.EventFrame
	live   bool
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

var _ eventcache.Emitter = (*Local)(nil)

// NewLocal returns a Local. Bind it to a table, then Open it.
func NewLocal() *Local {
	return &Local{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// Bind sets the table calls are dispatched to.
func (l *Local) Bind(t *Table) {
	l.mu.Lock()
	l.table = t
	l.mu.Unlock()
}

// Open makes the context live and tells the service.
func (l *Local) Open() {
	l.mu.Lock()
	l.live = true
	t := l.table
	l.mu.Unlock()
	if t != nil {
		t.Attach()
	}
}

// Close ends the context. Queued events are discarded; events that were
// not yet emitted stay in the service's cache.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.live = false
	l.queue = nil
	t := l.table
	l.mu.Unlock()

	close(l.done)
	if t != nil {
		t.Detach()
	}
	return nil
}

// Live reports whether the context is open.
func (l *Local) Live() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// Emit queues an event for Next.
func (l *Local) Emit(_ context.Context, name string, data json.RawMessage) error {
	l.mu.Lock()
	if !l.live {
		l.mu.Unlock()
		return eventcache.ErrNoContext
	}
	l.queue = append(l.queue, protocol.EventFrame{Name: name, Data: data})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Next returns the oldest queued event, waiting for one if needed.
func (l *Local) Next(ctx context.Context) (protocol.EventFrame, error) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return protocol.EventFrame{}, ErrClosed
		}
		if len(l.queue) > 0 {
			ev := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return ev, nil
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-l.done:
		case <-ctx.Done():
			return protocol.EventFrame{}, ctx.Err()
		}
	}
}

// Call runs method on the bound table. Failures are returned as
// *protocol.ErrorPayload, the same shape a remote host link produces.
func (l *Local) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	l.mu.Lock()
	t, closed := l.table, l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if t == nil {
		return nil, errors.New("local transport is not bound to a method table")
	}
	res, err := t.Call(ctx, method, args)
	if err != nil {
		return nil, ToPayload(err)
	}
	return res, nil
}
