package corehttp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/interceptor"
)

// call is the Call implementation returned by Client.NewCall, per spec.md
// §3 "Call(request) → Response, either synchronously (execute) or
// asynchronously (enqueue(callback))." A call may be executed at most once,
// mirroring OkHttp-family "already executed" guards.
type call struct {
	client  *Client
	request *core.Request
	ctx     context.Context
	cancel  context.CancelFunc

	info core.CallInfo

	mu       sync.Mutex
	executed bool
	canceled atomic.Bool
}

// NewCall starts one logical call for req. The returned Call is good for
// exactly one Execute or EnqueueAsync.
func (c *Client) NewCall(req *core.Request) core.Call {
	ctx, cancel := context.WithCancel(context.Background())
	return &call{
		client:  c,
		request: req,
		ctx:     ctx,
		cancel:  cancel,
		info: core.CallInfo{
			ID:        uuid.NewString(),
			StartedAt: time.Now(),
			Request:   req,
		},
	}
}

// NewCallWithContext is NewCall, but the call's context is derived from ctx
// so its deadline/cancellation propagates into the connection acquisition
// and exchange.
func (c *Client) NewCallWithContext(ctx context.Context, req *core.Request) core.Call {
	innerCtx, cancel := context.WithCancel(ctx)
	return &call{
		client:  c,
		request: req,
		ctx:     innerCtx,
		cancel:  cancel,
		info: core.CallInfo{
			ID:        uuid.NewString(),
			StartedAt: time.Now(),
			Request:   req,
		},
	}
}

func (c *call) Request() *core.Request  { return c.request }
func (c *call) Context() context.Context { return c.ctx }
func (c *call) IsCanceled() bool         { return c.canceled.Load() }
func (c *call) Info() core.CallInfo      { return c.info }

func (c *call) Cancel() {
	if c.canceled.CompareAndSwap(false, true) {
		c.cancel()
	}
}

// Execute runs the call synchronously on the calling goroutine, per spec.md
// §3 "execute() ... blocks the calling thread/goroutine."
func (c *call) Execute() (*core.Response, error) {
	if err := c.markExecuted(); err != nil {
		return nil, err
	}
	return c.run()
}

// EnqueueAsync submits the call to the Client's Dispatcher, per spec.md §3
// "enqueue(callback) ... runs on a dispatcher-managed goroutine." callback
// receives either a Response or an error, never both.
func (c *call) EnqueueAsync(callback func(*core.Response, error)) {
	if err := c.markExecuted(); err != nil {
		callback(nil, err)
		return
	}
	host := c.request.URL().Host
	c.client.dispatcher.Enqueue(host, c, func() {
		resp, err := c.run()
		callback(resp, err)
	})
}

func (c *call) markExecuted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executed {
		return core.NewCallError(core.KindMisuse, "call already executed", nil)
	}
	c.executed = true
	return nil
}

func (c *call) run() (*core.Response, error) {
	cl := c.client
	cl.listener.CallStart(c.info)

	chain := interceptor.NewChain(cl.interceptors, cl.networkFrom, c, c.request)
	resp, err := chain.Proceed(c.request)
	if err != nil {
		if core.KindOf(err) == core.KindCanceled {
			cl.listener.Canceled(c.info)
		} else {
			cl.listener.CallFailed(c.info, err)
		}
		return nil, err
	}

	cl.listener.CallEnd(c.info)
	return resp, nil
}
