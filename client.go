// Package corehttp is an HTTP client library for synchronous and
// asynchronous request/response exchange over HTTP/1.1, HTTP/2 and
// WebSocket, per spec.md §1. Build a Client with NewClientBuilder, then use
// Client.NewCall(request) for one logical call.
package corehttp

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/corehttp/corehttp/cache"
	"github.com/corehttp/corehttp/cookiejar"
	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/dispatch"
	"github.com/corehttp/corehttp/httpurl"
	"github.com/corehttp/corehttp/interceptor"
	"github.com/corehttp/corehttp/transport"
)

// Client is the immutable, shareable entry point, per spec.md §1 "a single
// Client instance is meant to be constructed once and reused across many
// calls; it owns the connection pool and dispatcher."
type Client struct {
	dispatcher   *dispatch.Dispatcher
	pool         *transport.Pool
	planner      *transport.Planner
	dialer       transport.Dialer
	listener     core.EventListener
	interceptors []core.Interceptor
	networkFrom  int
	jar          *cookiejar.Jar
	followRedirects bool
	tlsConfig    *tls.Config
	log          *zap.Logger
}

// ClientBuilder configures a Client before construction, per spec.md §9
// "DSL builders ... avoid hidden control-flow tricks."
type ClientBuilder struct {
	maxRequests        int
	maxRequestsPerHost int
	poolCfg            transport.PoolConfig
	dns                core.Dns
	dialer             transport.Dialer
	listener           core.EventListener
	interceptors       []core.Interceptor
	networkInterceptors []core.Interceptor
	jar                *cookiejar.Jar
	followRedirects    bool
	cacheStore         *cache.Cache
	authenticator      core.Authenticator
	proxyAuthenticator core.Authenticator
	tlsConfig          *tls.Config
	log                *zap.Logger
}

// NewClientBuilder starts a ClientBuilder with the spec's defaults: 64/5
// dispatcher caps, 5 idle connections per address kept for 5 minutes,
// redirects followed, no cache, no cookie jar, a no-op event listener.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		maxRequests:        dispatch.DefaultMaxRequests,
		maxRequestsPerHost: dispatch.DefaultMaxRequestsPerHost,
		poolCfg:            transport.DefaultPoolConfig(),
		listener:           core.NopListener{},
		followRedirects:    true,
	}
}

func (b *ClientBuilder) Dns(d core.Dns) *ClientBuilder { b.dns = d; return b }

func (b *ClientBuilder) Dialer(d transport.Dialer) *ClientBuilder { b.dialer = d; return b }

func (b *ClientBuilder) EventListener(l core.EventListener) *ClientBuilder {
	b.listener = l
	return b
}

func (b *ClientBuilder) AddInterceptor(i core.Interceptor) *ClientBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *ClientBuilder) AddNetworkInterceptor(i core.Interceptor) *ClientBuilder {
	b.networkInterceptors = append(b.networkInterceptors, i)
	return b
}

func (b *ClientBuilder) CookieJar(j *cookiejar.Jar) *ClientBuilder { b.jar = j; return b }

func (b *ClientBuilder) FollowRedirects(on bool) *ClientBuilder {
	b.followRedirects = on
	return b
}

func (b *ClientBuilder) Cache(maxSizeBytes int64) *ClientBuilder {
	b.cacheStore = cache.New(maxSizeBytes)
	return b
}

func (b *ClientBuilder) Authenticator(a core.Authenticator) *ClientBuilder {
	b.authenticator = a
	return b
}

func (b *ClientBuilder) ProxyAuthenticator(a core.Authenticator) *ClientBuilder {
	b.proxyAuthenticator = a
	return b
}

func (b *ClientBuilder) MaxIdleConnections(n int) *ClientBuilder {
	b.poolCfg.MaxIdleConnections = n
	return b
}

func (b *ClientBuilder) KeepAlive(d time.Duration) *ClientBuilder {
	b.poolCfg.KeepAliveDuration = d
	return b
}

func (b *ClientBuilder) TLSConfig(cfg *tls.Config) *ClientBuilder {
	b.tlsConfig = cfg
	return b
}

func (b *ClientBuilder) Logger(l *zap.Logger) *ClientBuilder {
	b.log = l
	return b
}

// Build assembles the Client's interceptor chain in the fixed order spec.md
// §4.1 requires: application interceptors, RetryAndFollowUp, Bridge, Cache,
// Connect, application network interceptors, CallServer. Connect and
// everything after it sit in network position.
func (b *ClientBuilder) Build() *Client {
	pool := transport.NewPool(b.poolCfg)
	planner := transport.NewPlanner(b.dns)
	listener := b.listener
	if listener == nil {
		listener = core.NopListener{}
	}

	chain := make([]core.Interceptor, 0, len(b.interceptors)+len(b.networkInterceptors)+5)
	chain = append(chain, b.interceptors...)
	chain = append(chain, &interceptor.RetryAndFollowUp{
		Authenticator:      b.authenticator,
		ProxyAuthenticator: b.proxyAuthenticator,
		FollowRedirects:    b.followRedirects,
	})
	chain = append(chain, interceptor.Bridge{Jar: b.jar})
	if b.cacheStore != nil {
		chain = append(chain, &interceptor.Cache{Store: b.cacheStore})
	}
	networkFrom := len(chain)
	chain = append(chain, &interceptor.Connect{
		Pool:    pool,
		Planner: planner,
		Dialer:  b.dialer,
		Listener: listener,
		AddressOf: func(req *core.Request) *core.Address { return addressFor(req, b.tlsConfig) },
	})
	chain = append(chain, b.networkInterceptors...)
	chain = append(chain, &interceptor.CallServer{Listener: listener})

	if b.log != nil {
		chain = append([]core.Interceptor{&interceptor.Logging{Log: b.log}}, chain...)
		networkFrom++
	}

	return &Client{
		dispatcher:      dispatch.New(b.maxRequests, b.maxRequestsPerHost),
		pool:            pool,
		planner:         planner,
		dialer:          b.dialer,
		listener:        listener,
		interceptors:    chain,
		networkFrom:     networkFrom,
		jar:             b.jar,
		followRedirects: b.followRedirects,
		tlsConfig:       b.tlsConfig,
		log:             b.log,
	}
}

// addressFor derives the core.Address a request should connect through:
// TLS settings from the URL scheme, direct proxying unless a Dialer override
// says otherwise.
func addressFor(req *core.Request, tlsConfig *tls.Config) *core.Address {
	u := req.URL()
	addr := &core.Address{
		Host:      u.Host,
		Port:      u.PortOrDefault(),
		Selector:  core.NoProxy{},
		Protocols: []string{"h2", "http/1.1"},
	}
	if u.Scheme == httpurl.HTTPS {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		addr.TLSConfig = cfg
	}
	return addr
}

// Pool exposes the connection pool for diagnostics and graceful shutdown.
func (c *Client) Pool() *transport.Pool { return c.pool }

// Close releases idle connections and stops background goroutines.
func (c *Client) Close() error { return c.pool.Close() }
