package transport

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/httpurl"
)

// Planner is the Route Planner (C1): it expands an Address into the ordered
// list of ConnectPlans a call may attempt, per spec.md §3 "RoutePlanner
// ... consults the ProxySelector, then Dns, producing an ordered list of
// Routes; retries move to the next Route on failure." Concurrent calls for
// the same Address share one planning pass (DNS lookups included) through
// group, a per-Address acquisition-serialization step; each caller still
// races its own dial over the shared plan list, so connection exclusivity
// for HTTP/1 is untouched by the coalescing.
type Planner struct {
	dns   core.Dns
	group singleflight.Group
}

// NewPlanner builds a Planner; a nil dns falls back to core.SystemDns().
func NewPlanner(dns core.Dns) *Planner {
	if dns == nil {
		dns = core.SystemDns()
	}
	return &Planner{dns: dns}
}

// Plan resolves addr into the ordered ConnectPlan sequence for u, coalescing
// concurrent callers for the same Address into a single planning pass via
// singleflight before delegating to planUncached.
func (p *Planner) Plan(ctx context.Context, addr *core.Address, u *httpurl.URL, listener core.EventListener, callInfo core.CallInfo) ([]*core.ConnectPlan, error) {
	v, err, _ := p.group.Do(keyFor(addr).(string), func() (interface{}, error) {
		return p.planUncached(ctx, addr, u, listener, callInfo)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*core.ConnectPlan), nil
}

// planUncached consults the Address's ProxySelector (or explicit Proxies
// list) first and then Dns for each candidate proxy/origin host, per
// spec.md §4.2.
func (p *Planner) planUncached(ctx context.Context, addr *core.Address, u *httpurl.URL, listener core.EventListener, callInfo core.CallInfo) ([]*core.ConnectPlan, error) {
	proxies := addr.Proxies
	if proxies == nil {
		selector := addr.Selector
		if selector == nil {
			selector = core.NoProxy{}
		}
		proxies = selector.Select(u)
	}
	if len(proxies) == 0 {
		proxies = []core.Proxy{{Kind: core.ProxyDirect}}
	}

	dns := addr.Dns
	if dns == nil {
		dns = p.dns
	}

	var plans []*core.ConnectPlan
	for _, proxy := range proxies {
		dialHost := addr.Host
		if proxy.Kind != core.ProxyDirect {
			dialHost = proxy.Host
		}

		listener.DnsStart(callInfo, dialHost)
		ips, err := dns.Lookup(ctx, dialHost)
		listener.DnsEnd(callInfo, dialHost, len(ips), err)
		if err != nil {
			// One failed proxy candidate doesn't sink the whole plan list;
			// the fast-fallback racer and RetryAndFollowUp both expect to
			// walk past a route that never got a chance to dial.
			continue
		}

		tunnelRequired := proxy.Kind == core.ProxyHTTP && addr.IsTLS()
		for _, ip := range ips {
			route := &core.Route{Address: addr, Proxy: proxy, IP: ip}
			plans = append(plans, &core.ConnectPlan{
				Route:          route,
				TunnelRequired: tunnelRequired,
				TLSRequired:    addr.IsTLS(),
			})
		}
	}

	if len(plans) == 0 {
		return nil, fmt.Errorf("corehttp: no route to %s:%s", addr.Host, addr.Port)
	}
	return plans, nil
}
