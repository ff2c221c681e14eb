// Package transport implements the Call Execution Pipeline's hard-engineering
// core named in spec.md §1: route planning with fast fallback (C1-C3), the
// connection pool (C4-C5), the HTTP/1 and HTTP/2 exchange codecs (C6-C7),
// and the Exchange state machine (C8).
package transport

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"

	"github.com/corehttp/corehttp/core"
)

// Connection is a live transport bound to a negotiated protocol, per
// spec.md §3 "Connection". States follow
// NEW → TCP_CONNECTED → TLS_CONNECTED → READY → IN_USE{1..N} → IDLE → CLOSED.
type Connection struct {
	id    string
	route *core.Route

	mu    sync.Mutex
	state core.PlanState

	netConn   net.Conn
	tlsConn   *tls.Conn
	handshake *core.Handshake

	protocol string // "http/1.1" or "h2"

	// HTTP/1: the connection serializes exchanges; bufReader/bufWriter are
	// shared by the single in-flight http1Codec.
	bufReader *bufio.Reader
	bufWriter *bufio.Writer
	h1Busy    bool

	// HTTP/2: delegate multiplexing, HPACK and flow control to the real
	// wire stack (golang.org/x/net/http2), per SPEC_FULL.md A7.
	h2 *http2.ClientConn

	noNewExchanges bool
	activeCount    int
	idleSince      time.Time
}

// ID implements core.ConnectionHandle.
func (c *Connection) ID() string { return c.id }

// Route implements core.ConnectionHandle.
func (c *Connection) Route() *core.Route { return c.route }

// Protocol implements core.ConnectionHandle.
func (c *Connection) Protocol() string { return c.protocol }

// State returns the current lifecycle state under lock.
func (c *Connection) State() core.PlanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s core.PlanState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handshake returns the negotiated TLS parameters, or nil for plaintext.
func (c *Connection) Handshake() *core.Handshake { return c.handshake }

// IsMultiplexed reports whether this connection can carry more than one
// concurrent exchange (spec.md §3: "for HTTP/1.1 N=1; for HTTP/2 up to
// peer's MAX_CONCURRENT_STREAMS").
func (c *Connection) IsMultiplexed() bool { return c.protocol == "h2" }

// CanTakeNewExchange reports whether the pool may hand this connection out
// for one more exchange.
func (c *Connection) CanTakeNewExchange() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noNewExchanges || c.state == core.StateClosed {
		return false
	}
	if c.protocol == "h2" {
		return c.h2.CanTakeNewRequest()
	}
	return !c.h1Busy
}

// MarkNoNewExchanges marks the connection unreusable — after GOAWAY,
// Connection: close, or an I/O error (spec.md §4.3) — while letting
// in-flight exchanges drain.
func (c *Connection) MarkNoNewExchanges() {
	c.mu.Lock()
	c.noNewExchanges = true
	c.mu.Unlock()
}

func (c *Connection) NoNewExchanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noNewExchanges
}

// acquireForExchange increments the active count and, for HTTP/1,
// exclusively claims the codec until release.
func (c *Connection) acquireForExchange() {
	c.mu.Lock()
	c.activeCount++
	c.h1Busy = true
	c.state = core.StateInUse
	c.mu.Unlock()
}

// releaseFromExchange decrements the active count; once it reaches zero the
// connection becomes eligible for the pool's idle set again (spec.md §3
// "ConnectionPool entry ... inserted ... after the last exchange completes
// on a reusable connection").
func (c *Connection) releaseFromExchange() (idle bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeCount--
	c.h1Busy = false
	if c.activeCount <= 0 {
		c.activeCount = 0
		c.state = core.StateIdle
		c.idleSince = time.Now()
		return true
	}
	return false
}

func (c *Connection) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleSince
}

func (c *Connection) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCount
}

// Close tears down the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.state = core.StateClosed
	c.mu.Unlock()
	if c.netConn != nil {
		return c.netConn.Close()
	}
	return nil
}

func newConnectionID() string { return uuid.NewString() }
