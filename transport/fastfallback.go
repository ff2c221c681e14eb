package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corehttp/corehttp/core"
)

// FastFallbackDelay staggers the next ConnectPlan attempt behind the current
// one, per spec.md §3 "FastFallbackRacer ... staggers Connect Plan attempts
// (default 250ms) and keeps the first to succeed, canceling the rest" —
// modeled on Happy Eyeballs (RFC 8305).
const FastFallbackDelay = 250 * time.Millisecond

// errRaceWon is returned by the winning attempt's goroutine purely to make
// errgroup.Group cancel every other in-flight attempt's context; it is never
// surfaced to Race's caller.
var errRaceWon = errors.New("transport: race won")

// Race attempts plans in order, starting the next one after FastFallbackDelay
// if the previous attempt hasn't yet succeeded, and returns the first
// Connection to come up. Losing attempts are canceled (via the shared
// errgroup context) and their sockets closed once the winner is known.
func Race(ctx context.Context, dialer Dialer, plans []*core.ConnectPlan, listener core.EventListener, callInfo core.CallInfo) (*Connection, error) {
	if len(plans) == 0 {
		return nil, core.NewCallError(core.KindMisuse, "no connect plans to race", nil)
	}
	if len(plans) == 1 {
		conn, result := Dial(ctx, dialer, plans[0], listener, callInfo)
		if result.Err != nil {
			return nil, result.Err
		}
		return conn, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var winner *Connection
	var errs []error

	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			delay := time.Duration(i) * FastFallbackDelay
			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-gctx.Done():
					return nil
				}
			}

			conn, result := Dial(gctx, dialer, plan, listener, callInfo)
			if result.Err != nil {
				mu.Lock()
				errs = append(errs, result.Err)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			won := winner == nil
			if won {
				winner = conn
			}
			mu.Unlock()
			if !won {
				conn.Close()
				return nil
			}
			return errRaceWon
		})
	}
	g.Wait()

	if winner != nil {
		return winner, nil
	}
	if ctx.Err() != nil {
		return nil, core.NewCallError(core.KindCanceled, "connect race canceled", ctx.Err())
	}
	return nil, firstErrOrAggregate(errs)
}

func firstErrOrAggregate(errs []error) error {
	if len(errs) == 0 {
		return core.NewCallError(core.KindTransport, "all routes failed", nil)
	}
	return core.NewCallError(core.KindTransport, "all routes failed", errs[0])
}
