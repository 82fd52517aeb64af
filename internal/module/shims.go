package module

import (
	"context"
	"encoding/json"

	"github.com/kuuji/mmbridge/pkg/protocol"
)

// Promise answers call frames with a result or error frame.
type Promise struct {
	table *Table
}

// NewPromise returns the promise shim of t.
func NewPromise(t *Table) *Promise {
	return &Promise{table: t}
}

// Resolve runs call and builds the reply frame.
func (p *Promise) Resolve(ctx context.Context, call *protocol.CallFrame) protocol.Frame {
	res, err := p.table.Call(ctx, call.Method, call.Args)
	if err != nil {
		return &protocol.ErrorFrame{ID: call.ID, Error: *ToPayload(err)}
	}
	return &protocol.ResultFrame{ID: call.ID, Result: res}
}

// Callbacks runs calls off the caller's thread and reports through a
// success/error pair.
type Callbacks struct {
	ctx   context.Context
	table *Table
}

// NewCallbacks returns the callback shim of t. ctx bounds every call.
func NewCallbacks(ctx context.Context, t *Table) *Callbacks {
	return &Callbacks{ctx: ctx, table: t}
}

// Call runs method in its own goroutine. Exactly one of onSuccess and
// onError is invoked.
func (c *Callbacks) Call(method string, args json.RawMessage, onSuccess func(json.RawMessage), onError func(*protocol.ErrorPayload)) {
	go func() {
		res, err := c.table.Call(c.ctx, method, args)
		if err != nil {
			onError(ToPayload(err))
			return
		}
		onSuccess(res)
	}()
}
