package core

import "time"

// EventListener receives the well-defined event sequence of spec.md §5:
// "CallStart, DnsStart, DnsEnd, ConnectStart, SecureConnectStart/End,
// ConnectEnd, ConnectionAcquired, RequestHeadersStart/End,
// RequestBodyStart/End, ResponseHeadersStart/End, ResponseBodyStart/End,
// ConnectionReleased, CallEnd/Failed". Every method has a no-op default via
// embedding NopListener, so implementations only override what they need.
type EventListener interface {
	CallStart(call CallInfo)
	DnsStart(call CallInfo, host string)
	DnsEnd(call CallInfo, host string, addrs int, err error)
	ConnectStart(call CallInfo, route *Route)
	SecureConnectStart(call CallInfo)
	SecureConnectEnd(call CallInfo, handshake *Handshake, err error)
	ConnectEnd(call CallInfo, route *Route, protocol string, err error)
	ConnectionAcquired(call CallInfo, connID string)
	RequestHeadersStart(call CallInfo)
	RequestHeadersEnd(call CallInfo)
	RequestBodyStart(call CallInfo)
	RequestBodyEnd(call CallInfo, bytesWritten int64)
	ResponseHeadersStart(call CallInfo)
	ResponseHeadersEnd(call CallInfo, response *Response)
	ResponseBodyStart(call CallInfo)
	ResponseBodyEnd(call CallInfo, bytesRead int64)
	ConnectionReleased(call CallInfo, connID string)
	CallEnd(call CallInfo)
	CallFailed(call CallInfo, err error)
	Canceled(call CallInfo)
}

// CallInfo is the minimal, read-only call identity passed to every event —
// enough to correlate events across goroutines without exposing the live
// Call.
type CallInfo struct {
	ID        string // uuid, see A3 in SPEC_FULL.md
	StartedAt time.Time
	Request   *Request
}

// NopListener implements EventListener with no-ops; embed it to satisfy the
// interface while overriding only the events you care about.
type NopListener struct{}

func (NopListener) CallStart(CallInfo)                          {}
func (NopListener) DnsStart(CallInfo, string)                    {}
func (NopListener) DnsEnd(CallInfo, string, int, error)          {}
func (NopListener) ConnectStart(CallInfo, *Route)                {}
func (NopListener) SecureConnectStart(CallInfo)                  {}
func (NopListener) SecureConnectEnd(CallInfo, *Handshake, error) {}
func (NopListener) ConnectEnd(CallInfo, *Route, string, error)   {}
func (NopListener) ConnectionAcquired(CallInfo, string)          {}
func (NopListener) RequestHeadersStart(CallInfo)                 {}
func (NopListener) RequestHeadersEnd(CallInfo)                   {}
func (NopListener) RequestBodyStart(CallInfo)                    {}
func (NopListener) RequestBodyEnd(CallInfo, int64)                {}
func (NopListener) ResponseHeadersStart(CallInfo)                 {}
func (NopListener) ResponseHeadersEnd(CallInfo, *Response)        {}
func (NopListener) ResponseBodyStart(CallInfo)                    {}
func (NopListener) ResponseBodyEnd(CallInfo, int64)                {}
func (NopListener) ConnectionReleased(CallInfo, string)           {}
func (NopListener) CallEnd(CallInfo)                              {}
func (NopListener) CallFailed(CallInfo, error)                    {}
func (NopListener) Canceled(CallInfo)                             {}

// compositeListener fan-outs to every registered listener in registration
// order, per spec.md §9 "Event listener composition ... must not coalesce
// or reorder events." Grounded on the net/http httptrace.ClientTrace
// composition idea in trc/client_trace.go, but implemented as an ordered
// slice dispatch rather than reflection-built closures: simpler to read and
// just as order-preserving, in the spirit of spec.md §9's preference for
// explicit control flow over hidden tricks.
type compositeListener struct {
	listeners []EventListener
}

// ComposeListeners merges listeners into one that dispatches to each in
// registration order. A single listener is returned unwrapped.
func ComposeListeners(listeners ...EventListener) EventListener {
	filtered := listeners[:0]
	for _, l := range listeners {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &compositeListener{listeners: append([]EventListener(nil), filtered...)}
}

func (c *compositeListener) CallStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.CallStart(ci)
	}
}
func (c *compositeListener) DnsStart(ci CallInfo, host string) {
	for _, l := range c.listeners {
		l.DnsStart(ci, host)
	}
}
func (c *compositeListener) DnsEnd(ci CallInfo, host string, addrs int, err error) {
	for _, l := range c.listeners {
		l.DnsEnd(ci, host, addrs, err)
	}
}
func (c *compositeListener) ConnectStart(ci CallInfo, route *Route) {
	for _, l := range c.listeners {
		l.ConnectStart(ci, route)
	}
}
func (c *compositeListener) SecureConnectStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.SecureConnectStart(ci)
	}
}
func (c *compositeListener) SecureConnectEnd(ci CallInfo, h *Handshake, err error) {
	for _, l := range c.listeners {
		l.SecureConnectEnd(ci, h, err)
	}
}
func (c *compositeListener) ConnectEnd(ci CallInfo, route *Route, protocol string, err error) {
	for _, l := range c.listeners {
		l.ConnectEnd(ci, route, protocol, err)
	}
}
func (c *compositeListener) ConnectionAcquired(ci CallInfo, connID string) {
	for _, l := range c.listeners {
		l.ConnectionAcquired(ci, connID)
	}
}
func (c *compositeListener) RequestHeadersStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.RequestHeadersStart(ci)
	}
}
func (c *compositeListener) RequestHeadersEnd(ci CallInfo) {
	for _, l := range c.listeners {
		l.RequestHeadersEnd(ci)
	}
}
func (c *compositeListener) RequestBodyStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.RequestBodyStart(ci)
	}
}
func (c *compositeListener) RequestBodyEnd(ci CallInfo, n int64) {
	for _, l := range c.listeners {
		l.RequestBodyEnd(ci, n)
	}
}
func (c *compositeListener) ResponseHeadersStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.ResponseHeadersStart(ci)
	}
}
func (c *compositeListener) ResponseHeadersEnd(ci CallInfo, r *Response) {
	for _, l := range c.listeners {
		l.ResponseHeadersEnd(ci, r)
	}
}
func (c *compositeListener) ResponseBodyStart(ci CallInfo) {
	for _, l := range c.listeners {
		l.ResponseBodyStart(ci)
	}
}
func (c *compositeListener) ResponseBodyEnd(ci CallInfo, n int64) {
	for _, l := range c.listeners {
		l.ResponseBodyEnd(ci, n)
	}
}
func (c *compositeListener) ConnectionReleased(ci CallInfo, connID string) {
	for _, l := range c.listeners {
		l.ConnectionReleased(ci, connID)
	}
}
func (c *compositeListener) CallEnd(ci CallInfo) {
	for _, l := range c.listeners {
		l.CallEnd(ci)
	}
}
func (c *compositeListener) CallFailed(ci CallInfo, err error) {
	for _, l := range c.listeners {
		l.CallFailed(ci, err)
	}
}
func (c *compositeListener) Canceled(ci CallInfo) {
	for _, l := range c.listeners {
		l.Canceled(ci)
	}
}
