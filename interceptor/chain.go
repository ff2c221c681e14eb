// Package interceptor assembles the Interceptor Chain (spec.md §4.1): the
// built-in stack of RetryAndFollowUp, Bridge, Cache, Connect and CallServer
// wrapped around any application interceptors supplied via ClientBuilder.
package interceptor

import (
	"context"

	"github.com/corehttp/corehttp/core"
)

// realChain is the Chain implementation handed to each Interceptor.Intercept
// call, per spec.md §4.1 "Chain ... proceed(request) operation that invokes
// the next interceptor."
type realChain struct {
	interceptors []core.Interceptor
	index        int

	request    *core.Request
	call       core.Call
	connection core.ConnectionHandle

	// networkPositionFrom marks the index at or after which interceptors are
	// "network interceptors" per spec.md §4.1 — installed after Connect, so
	// they see the real wire request/response and must proceed exactly once.
	networkPositionFrom int

	proceedCalls int
}

// NewChain builds the root Chain for one call, ready to invoke interceptors
// starting at index 0.
func NewChain(interceptors []core.Interceptor, networkPositionFrom int, call core.Call, request *core.Request) core.Chain {
	return &realChain{
		interceptors:        interceptors,
		networkPositionFrom: networkPositionFrom,
		call:                call,
		request:             request,
	}
}

func (c *realChain) Request() *core.Request          { return c.request }
func (c *realChain) Call() core.Call                 { return c.call }
func (c *realChain) Connection() core.ConnectionHandle { return c.connection }
// IsNetworkPosition reports whether the interceptor that was handed this
// chain sits at or after networkPositionFrom. c.index is always one past
// that interceptor's own position (set by the parent Proceed call), hence
// the +1.
func (c *realChain) IsNetworkPosition() bool { return c.index >= c.networkPositionFrom+1 }

// Proceed invokes the next interceptor in the chain with request, per
// spec.md §4.1. Calling it past the end of the chain, more than once from a
// network interceptor, or from a network interceptor with a request whose
// host or port differs from the one it was handed, is a misuse error
// surfaced through CallError. A network interceptor that returns without
// calling Proceed is not detected.
func (c *realChain) Proceed(request *core.Request) (*core.Response, error) {
	if c.index >= len(c.interceptors) {
		return nil, core.NewCallError(core.KindMisuse, "chain exhausted: CallServer must be the last interceptor", nil)
	}
	if c.call.IsCanceled() {
		return nil, core.NewCallError(core.KindCanceled, "call canceled", core.ErrCanceled)
	}
	if c.IsNetworkPosition() {
		c.proceedCalls++
		if c.proceedCalls > 1 {
			return nil, core.NewCallError(core.KindMisuse, "network interceptor called proceed more than once", core.ErrNetworkInterceptorContract)
		}
		if request.URL().Host != c.request.URL().Host || request.URL().PortOrDefault() != c.request.URL().PortOrDefault() {
			return nil, core.NewCallError(core.KindMisuse, "network interceptor changed the request's host or port", core.ErrNetworkInterceptorContract)
		}
	}

	next := &realChain{
		interceptors:         c.interceptors,
		index:                c.index + 1,
		networkPositionFrom:  c.networkPositionFrom,
		call:                 c.call,
		request:              request,
		connection:           c.connection,
	}
	interceptorAt := c.interceptors[c.index]

	resp, err := interceptorAt.Intercept(next)
	if err == nil && resp == nil {
		return nil, core.NewCallError(core.KindMisuse, "interceptor returned neither response nor error", nil)
	}
	return resp, err
}

// withConnection returns a copy of c carrying a bound connection, used by
// the Connect interceptor once it has acquired one.
func (c *realChain) withConnection(conn core.ConnectionHandle) *realChain {
	out := *c
	out.connection = conn
	return &out
}

// ctxOrBackground is a small helper shared by interceptors that need a
// context from a Call that might not supply one.
func ctxOrBackground(call core.Call) context.Context {
	if ctx := call.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
