package transport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/corehttp/corehttp/core"
)

// http1Codec serializes one exchange over a Connection's shared bufio pair
// (C6), per spec.md §4.4 "HTTP/1 Codec: writes the request line + headers +
// optional body, then parses the status line + headers, then exposes the
// body reader honoring Content-Length/chunked/close-delimited framing." and
// spec.md §4.4's 100-continue handshake: "if request has `Expect:
// 100-continue`, the codec writes headers, reads an interim response before
// writing the body; on non-100, body is not sent."
//
// An HTTP/1 connection serializes exchanges one at a time — the codec holds
// no state across calls to Exchange, except the one-shot pendingFinal slot
// used to carry a non-100 response discovered while waiting on Expect:
// 100-continue through to the following readResponse call.
type http1Codec struct {
	conn *Connection

	pendingFinal *statusHead
}

// statusHead is a parsed status line plus its header block, used both for
// the final response and for any interim 1xx response read along the way.
type statusHead struct {
	proto   string
	code    int
	status  string
	headers *core.Headers
}

func newHTTP1Codec(conn *Connection) *http1Codec { return &http1Codec{conn: conn} }

// Exchange writes req and reads the matching response. The caller must fully
// drain or close the returned Response's body before reusing the connection
// for another exchange (spec.md §4.4 "the next request on an HTTP/1
// connection must wait for the previous response body to be fully consumed
// or closed").
func (c *http1Codec) Exchange(req *core.Request) (*core.Response, error) {
	if err := c.writeRequest(req); err != nil {
		return nil, core.NewCallError(core.KindTransport, "http/1 write request failed", err)
	}
	resp, err := c.readResponse(req)
	if err != nil {
		return nil, core.NewCallError(core.KindProtocol, "http/1 read response failed", err)
	}
	return resp, nil
}

func wantsContinue(req *core.Request) bool {
	return strings.EqualFold(strings.TrimSpace(req.Headers().Get("Expect")), "100-continue")
}

func (c *http1Codec) writeRequest(req *core.Request) error {
	w := c.conn.bufWriter
	u := req.URL()

	requestTarget := u.RequestURI()
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", req.Method(), requestTarget); err != nil {
		return err
	}

	headers := req.Headers().Clone()
	if headers.Get("Host") == "" {
		headers.Set("Host", u.HostHeader())
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", "corehttp/1.0")
	}

	body := req.Body()
	useChunked := false
	if body != nil {
		if n := body.ContentLength(); n >= 0 {
			headers.Set("Content-Length", strconv.FormatInt(n, 10))
		} else {
			useChunked = true
			headers.Set("Transfer-Encoding", "chunked")
		}
		if ct := body.ContentType(); ct != "" && headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", ct)
		}
	} else if req.Method() == core.MethodPost || req.Method() == core.MethodPut || req.Method() == core.MethodPatch {
		headers.Set("Content-Length", "0")
	}

	if err := writeHeaderBlock(w, headers); err != nil {
		return err
	}

	if body != nil && wantsContinue(req) {
		if err := w.Flush(); err != nil {
			return err
		}
		proceed, err := c.awaitContinue()
		if err != nil {
			return err
		}
		if !proceed {
			// Server sent a final (non-100) response without asking for the
			// body — e.g. 417 Expectation Failed, or an early auth error.
			// pendingFinal carries it through to readResponse unchanged.
			return nil
		}
	}

	if body != nil {
		r, err := body.NewReader()
		if err != nil {
			return err
		}
		defer r.Close()
		if useChunked {
			cw := newChunkedWriter(w)
			if _, err := io.Copy(cw, r); err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
		} else if _, err := io.Copy(w, r); err != nil {
			return err
		}
	}

	return w.Flush()
}

// awaitContinue blocks for the interim response to an Expect: 100-continue
// request. It discards any number of 1xx lines that are not 100 itself (a
// server may send 102/103 hints first), returns true the moment a 100
// Continue arrives, and returns false — stashing the response it found in
// pendingFinal — the moment a non-1xx status line arrives instead.
func (c *http1Codec) awaitContinue() (bool, error) {
	for {
		head, err := c.readStatusHead()
		if err != nil {
			return false, err
		}
		if head.code == 100 {
			return true, nil
		}
		if head.code >= 100 && head.code <= 199 {
			continue
		}
		c.pendingFinal = head
		return false, nil
	}
}

func writeHeaderBlock(w *bufio.Writer, h *core.Headers) error {
	var err error
	h.ForEach(func(name, value string) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, "%s: %s\r\n", name, value)
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}

// readResponse parses the final status line and header block, skipping past
// any unsolicited 1xx informational responses along the way — a compliant
// server may send one even when the request carried no Expect header, and
// spec.md §4.4 requires the codec not to mistake it for the final response.
func (c *http1Codec) readResponse(req *core.Request) (*core.Response, error) {
	head := c.pendingFinal
	c.pendingFinal = nil

	for head == nil {
		h, err := c.readStatusHead()
		if err != nil {
			return nil, err
		}
		if h.code >= 100 && h.code <= 199 && h.code != 101 {
			continue
		}
		head = h
	}

	resp := &core.Response{
		Request:    req,
		Protocol:   head.proto,
		StatusCode: head.code,
		Status:     head.status,
		Headers:    head.headers,
	}

	resp.Body = c.bodyFor(req, resp, head.headers)
	return resp, nil
}

// readStatusHead reads one status line and its terminating header block —
// either the final response or a single 1xx informational response.
func (c *http1Codec) readStatusHead() (*statusHead, error) {
	r := c.conn.bufReader
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	proto, statusCode, status, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	headers := core.NewHeaders()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("corehttp: malformed header line %q", line)
		}
		headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return &statusHead{proto: proto, code: statusCode, status: status, headers: headers}, nil
}

// bodyFor picks the framing strategy per RFC 7230 §3.3.3, grounded on the
// teacher's fixLength/chunked switch in utils_transfer.go: chunked body,
// fixed Content-Length body, or (HTTP/1.0-style) read-until-close.
func (c *http1Codec) bodyFor(req *core.Request, resp *core.Response, h *core.Headers) *core.ResponseBody {
	if !bodyAllowedForStatus(resp.StatusCode) || req.Method() == core.MethodHead {
		return &core.ResponseBody{Source: io.NopCloser(strings.NewReader("")), Length: 0}
	}

	if isChunked(h.Get("Transfer-Encoding")) {
		cr := newChunkedReader(c.conn.bufReader)
		return &core.ResponseBody{
			Source: &closerFunc{Reader: cr, closeFn: func() error { c.conn.MarkNoNewExchanges(); return nil }},
			Length: -1,
			TrailerSource: func() *core.Headers {
				return readTrailers(c.conn.bufReader)
			},
		}
	}

	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n >= 0 {
			return &core.ResponseBody{Source: io.NopCloser(io.LimitReader(c.conn.bufReader, n)), Length: n}
		}
	}

	// No declared length: body runs until the connection closes. Mark the
	// connection unreusable, per spec.md §4.3 "close-delimited bodies make
	// the connection ineligible for the pool."
	c.conn.MarkNoNewExchanges()
	return &core.ResponseBody{Source: io.NopCloser(c.conn.bufReader), Length: -1}
}

type closerFunc struct {
	io.Reader
	closeFn func() error
}

func (c *closerFunc) Close() error { return c.closeFn() }

func readTrailers(r *bufio.Reader) *core.Headers {
	h := core.NewHeaders()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return h
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return h
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == 204, status == 304:
		return false
	}
	return true
}

func isChunked(transferEncoding string) bool {
	return strings.EqualFold(strings.TrimSpace(transferEncoding), "chunked")
}

func parseStatusLine(line string) (proto string, code int, status string, err error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("corehttp: malformed status line %q", line)
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("corehttp: malformed status code in %q", line)
	}
	status = parts[1]
	if len(parts) == 3 {
		status = parts[1] + " " + parts[2]
	}
	return parts[0], code, status, nil
}
