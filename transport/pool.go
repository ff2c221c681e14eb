package transport

import (
	"crypto/x509"
	"sync"
	"time"

	"github.com/corehttp/corehttp/core"
)

// PoolConfig bounds the Connection Pool (C4-C5), per spec.md §3
// "ConnectionPool(maxIdleConnections, keepAliveDuration)".
type PoolConfig struct {
	MaxIdleConnections int
	KeepAliveDuration  time.Duration
}

// DefaultPoolConfig mirrors the teacher's transport defaults: five idle
// connections per pool, five minutes of idle keep-alive.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxIdleConnections: 5, KeepAliveDuration: 5 * time.Minute}
}

// Pool holds READY/IDLE connections keyed by Address and evicts them once
// idle past KeepAliveDuration or once MaxIdleConnections per address is
// exceeded, per spec.md §3 "Connection reuse is keyed by Address equality
// ... and, for HTTP/2, further coalesced across Routes whose certificate
// covers both hosts (§4.5)."
type Pool struct {
	cfg PoolConfig

	mu    sync.Mutex
	byKey map[addressKeyOf][]*Connection
	// closed is set by Close to stop the janitor and refuse new entries.
	closed bool
	stopCh chan struct{}
}

type addressKeyOf = interface{}

// NewPool builds a pool and starts its idle-eviction janitor. Call Close to
// stop the janitor goroutine.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = 5
	}
	if cfg.KeepAliveDuration <= 0 {
		cfg.KeepAliveDuration = 5 * time.Minute
	}
	p := &Pool{
		cfg:    cfg,
		byKey:  make(map[addressKeyOf][]*Connection),
		stopCh: make(chan struct{}),
	}
	go p.janitor()
	return p
}

func keyFor(a *core.Address) addressKeyOf {
	// addressKey is unexported in package core, so the pool builds its own
	// key from host, port and TLS ServerName. Unlike Address.Equal, it does
	// not include the protocol list or whether a ProxySelector is set.
	sni := ""
	if a.TLSConfig != nil {
		sni = a.TLSConfig.ServerName
	}
	return a.Host + "|" + a.Port + "|" + sni
}

// Get returns a pooled Connection that CanTakeNewExchange for route's
// Address, or nil if none is available. For HTTP/2 this may return a
// connection whose Route differs from the requested one, provided the
// certificate covers both hosts — see TryCoalesce.
func (p *Pool) Get(route *core.Route) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyFor(route.Address)
	for _, c := range p.byKey[key] {
		if c.CanTakeNewExchange() {
			return c
		}
	}
	return nil
}

// TryCoalesce looks across all pooled HTTP/2 connections for one that can
// serve host under the given Address's certificate, per spec.md §4.5
// "ConnectionPool.get(route) ... may also return a connection for a
// different Route if HTTP/2 connection coalescing applies". It returns the
// first multiplexed connection on the same port that can take a new
// exchange and whose peer certificate verifies for host (certCoversHost).
func (p *Pool) TryCoalesce(addr *core.Address, host string) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conns := range p.byKey {
		for _, c := range conns {
			if !c.IsMultiplexed() || !c.CanTakeNewExchange() {
				continue
			}
			if c.Route().Address.Port != addr.Port {
				continue
			}
			if certCoversHost(c.Handshake(), host) {
				return c
			}
		}
	}
	return nil
}

// Put registers a freshly dialed connection as available for reuse.
func (p *Pool) Put(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return
	}
	key := keyFor(c.Route().Address)
	conns := p.byKey[key]
	if len(conns) >= p.cfg.MaxIdleConnections && !c.IsMultiplexed() {
		// Over budget: evict the oldest idle connection for this key before
		// inserting, per spec.md §3's per-Address idle cap.
		if victim, rest, ok := evictOldest(conns); ok {
			p.byKey[key] = rest
			victim.Close()
		}
	}
	p.byKey[key] = append(p.byKey[key], c)
}

// Remove drops c from the pool (on I/O error, GOAWAY, or Connection: close).
func (p *Pool) Remove(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyFor(c.Route().Address)
	p.byKey[key] = removeConn(p.byKey[key], c)
}

// Close stops the janitor and closes every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := p.byKey
	p.byKey = make(map[addressKeyOf][]*Connection)
	p.mu.Unlock()

	close(p.stopCh)
	for _, conns := range all {
		for _, c := range conns {
			c.Close()
		}
	}
	return nil
}

// janitor evicts connections idle past KeepAliveDuration, mirroring the
// teacher's idle-reaper goroutine pattern used across its transport pool.
func (p *Pool) janitor() {
	ticker := time.NewTicker(p.cfg.KeepAliveDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictExpired()
		}
	}
}

func (p *Pool) evictExpired() {
	p.mu.Lock()
	var doomed []*Connection
	for key, conns := range p.byKey {
		var kept []*Connection
		for _, c := range conns {
			if c.State() == core.StateIdle && time.Since(c.IdleSince()) > p.cfg.KeepAliveDuration {
				doomed = append(doomed, c)
				continue
			}
			kept = append(kept, c)
		}
		p.byKey[key] = kept
	}
	p.mu.Unlock()
	for _, c := range doomed {
		c.Close()
	}
}

func evictOldest(conns []*Connection) (victim *Connection, rest []*Connection, ok bool) {
	oldestIdx := -1
	var oldest time.Time
	for i, c := range conns {
		if c.State() != core.StateIdle {
			continue
		}
		t := c.IdleSince()
		if oldestIdx == -1 || t.Before(oldest) {
			oldestIdx, oldest = i, t
		}
	}
	if oldestIdx == -1 {
		return nil, conns, false
	}
	victim = conns[oldestIdx]
	rest = append(append([]*Connection{}, conns[:oldestIdx]...), conns[oldestIdx+1:]...)
	return victim, rest, true
}

func removeConn(conns []*Connection, target *Connection) []*Connection {
	out := conns[:0]
	for _, c := range conns {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// certCoversHost reports whether the connection's negotiated certificate
// also covers host, the test spec.md §4.5 requires before coalescing an
// HTTP/2 connection across Routes ("the handshake's certificate chain
// covers that host too").
func certCoversHost(h *core.Handshake, host string) bool {
	if h == nil {
		return false
	}
	for _, der := range h.PeerCertificates {
		if certVerifiesHost(der, host) {
			return true
		}
	}
	return false
}

func certVerifiesHost(der []byte, host string) bool {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return false
	}
	return cert.VerifyHostname(host) == nil
}
