package transport

import (
	"io"
	"net/http"
	"strconv"

	"golang.org/x/net/http2"

	"github.com/corehttp/corehttp/core"
)

// http2Codec exchanges a request over an already-negotiated http2.ClientConn
// (C7). Rather than re-implement HPACK, stream multiplexing and flow
// control, it translates core.Request/core.Response to and from net/http's
// types and delegates the wire protocol to golang.org/x/net/http2, per
// SPEC_FULL.md A7.
type http2Codec struct {
	conn *Connection
}

func newHTTP2Codec(conn *Connection) *http2Codec { return &http2Codec{conn: conn} }

func (c *http2Codec) Exchange(req *core.Request) (*core.Response, error) {
	httpReq, err := toStdRequest(req)
	if err != nil {
		return nil, core.NewCallError(core.KindMisuse, "building http/2 request", err)
	}

	httpResp, err := c.conn.h2.RoundTrip(httpReq)
	if err != nil {
		if err == http2.ErrNoCachedConn {
			return nil, core.NewCallError(core.KindTransport, "http/2 connection no longer usable", err)
		}
		return nil, core.NewCallError(core.KindProtocol, "http/2 round trip failed", err)
	}

	return fromStdResponse(req, httpResp), nil
}

func toStdRequest(req *core.Request) (*http.Request, error) {
	var body io.ReadCloser
	var contentLength int64 = -1
	if bs := req.Body(); bs != nil {
		r, err := bs.NewReader()
		if err != nil {
			return nil, err
		}
		body = r
		contentLength = bs.ContentLength()
	}

	httpReq, err := http.NewRequest(req.Method(), req.URL().String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.ContentLength = contentLength
	httpReq.Header = make(http.Header)
	req.Headers().ForEach(func(name, value string) {
		httpReq.Header.Add(name, value)
	})
	if httpReq.Header.Get("Host") == "" {
		httpReq.Host = req.URL().HostHeader()
	}
	return httpReq, nil
}

func fromStdResponse(req *core.Request, httpResp *http.Response) *core.Response {
	headers := core.NewHeaders()
	for name, values := range httpResp.Header {
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	length := httpResp.ContentLength
	body := &core.ResponseBody{
		Source: httpResp.Body,
		Length: length,
	}
	if len(httpResp.Trailer) > 0 {
		body.TrailerSource = func() *core.Headers {
			t := core.NewHeaders()
			for name, values := range httpResp.Trailer {
				for _, v := range values {
					t.Add(name, v)
				}
			}
			return t
		}
	}

	return &core.Response{
		Request:    req,
		Protocol:   "HTTP/2",
		StatusCode: httpResp.StatusCode,
		Status:     strconv.Itoa(httpResp.StatusCode) + " " + http.StatusText(httpResp.StatusCode),
		Headers:    headers,
		Body:       body,
	}
}
