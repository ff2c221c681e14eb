package transport

import (
	"context"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/httpurl"
)

// Acquire implements the connection-acquisition algorithm spec.md §4.5
// describes for the Connect interceptor: reuse a pooled connection for this
// Address if one CanTakeNewExchange; otherwise try HTTP/2 coalescing across
// Routes; otherwise plan routes and race new ConnectPlans, then register the
// winner with the pool.
func Acquire(ctx context.Context, pool *Pool, planner *Planner, dialer Dialer, addr *core.Address, u *httpurl.URL, listener core.EventListener, callInfo core.CallInfo) (*Connection, error) {
	if c := pool.Get(&core.Route{Address: addr}); c != nil {
		return c, nil
	}
	if addr.IsTLS() {
		if c := pool.TryCoalesce(addr, addr.Host); c != nil {
			return c, nil
		}
	}

	plans, err := planner.Plan(ctx, addr, u, listener, callInfo)
	if err != nil {
		return nil, core.NewCallError(core.KindTransport, "route planning failed", err)
	}

	conn, err := Race(ctx, dialer, plans, listener, callInfo)
	if err != nil {
		return nil, err
	}
	pool.Put(conn)
	return conn, nil
}
