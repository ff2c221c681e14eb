package interceptor

import (
	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/transport"
)

// AddressOf resolves a Request's URL to the core.Address describing the
// connections that may serve it (TLS settings, proxy, DNS, protocols).
// Supplied by the Client; interceptor does not know about ClientBuilder
// configuration directly, keeping the import graph one-directional.
type AddressOf func(req *core.Request) *core.Address

// Connect is the interceptor that acquires a Connection before CallServer
// runs, per spec.md §4.1 "Connect: acquires a connection (pool or new Connect
// Plan, possibly racing via FastFallbackRacer) and exposes it to CallServer."
type Connect struct {
	Pool      *transport.Pool
	Planner   *transport.Planner
	Dialer    transport.Dialer
	AddressOf AddressOf
	Listener  core.EventListener
}

func (c *Connect) Intercept(chain core.Chain) (*core.Response, error) {
	req := chain.Request()
	addr := c.AddressOf(req)
	call := chain.Call()
	callInfo := call.Info()

	conn, err := transport.Acquire(ctxOrBackground(call), c.Pool, c.Planner, c.Dialer, addr, req.URL(), c.Listener, callInfo)
	if err != nil {
		return nil, err
	}

	rc, ok := chain.(*realChain)
	if !ok {
		return nil, core.NewCallError(core.KindMisuse, "Connect interceptor requires the built-in chain implementation", nil)
	}
	return rc.withConnection(conn).Proceed(req)
}
