package transport

import (
	"github.com/corehttp/corehttp/core"
)

// codec is the protocol-specific half of an Exchange: write a request, read
// back a response.
type codec interface {
	Exchange(req *core.Request) (*core.Response, error)
}

// Exchange is the single request/response transmission over one Connection
// (C8), per spec.md §3 "Exchange(connection, request) → response; tracks
// bytes written/read for RequestBodyEnd/ResponseBodyEnd events."
type Exchange struct {
	conn     *Connection
	listener core.EventListener
	call     core.CallInfo
}

// NewExchange binds an Exchange to an acquired Connection. Callers must call
// Release (directly, or implicitly by draining/closing the response body)
// exactly once.
func NewExchange(conn *Connection, listener core.EventListener, call core.CallInfo) *Exchange {
	conn.acquireForExchange()
	listener.ConnectionAcquired(call, conn.ID())
	return &Exchange{conn: conn, listener: listener, call: call}
}

// Run performs the exchange, emitting the RequestHeaders/Body and
// ResponseHeaders/Body event pairs around the codec call.
func (e *Exchange) Run(req *core.Request) (*core.Response, error) {
	c := e.codecFor()

	e.listener.RequestHeadersStart(e.call)
	e.listener.RequestHeadersEnd(e.call)
	if req.Body() != nil {
		e.listener.RequestBodyStart(e.call)
	}

	resp, err := c.Exchange(req)

	if req.Body() != nil {
		e.listener.RequestBodyEnd(e.call, req.Body().ContentLength())
	}
	if err != nil {
		e.conn.MarkNoNewExchanges()
		return nil, err
	}

	e.listener.ResponseHeadersStart(e.call)
	e.listener.ResponseHeadersEnd(e.call, resp)
	e.listener.ResponseBodyStart(e.call)

	if shouldCloseAfterResponse(resp) {
		e.conn.MarkNoNewExchanges()
	}
	return resp, nil
}

// Release returns the connection to the idle pool once the caller has
// finished reading (or discarded) the response body.
func (e *Exchange) Release(bytesRead int64) {
	e.listener.ResponseBodyEnd(e.call, bytesRead)
	e.conn.releaseFromExchange()
	e.listener.ConnectionReleased(e.call, e.conn.ID())
}

func (e *Exchange) codecFor() codec {
	if e.conn.IsMultiplexed() {
		return newHTTP2Codec(e.conn)
	}
	return newHTTP1Codec(e.conn)
}

// shouldCloseAfterResponse reports whether the connection must not be
// reused after this response — e.g. "Connection: close" on an HTTP/1.1
// response, per spec.md §4.3.
func shouldCloseAfterResponse(resp *core.Response) bool {
	if resp.Protocol != "HTTP/1.1" {
		return false
	}
	return resp.Headers.Get("Connection") == "close"
}
