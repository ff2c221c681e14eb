package interceptor

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/corehttp/corehttp/cookiejar"
	"github.com/corehttp/corehttp/core"
)

// Bridge converts a user Request into a network request and a network
// Response into a user Response, per spec.md §4.1: where the request lacks
// them it adds Host, Connection: Keep-Alive, User-Agent, Cookie and (with
// transparent gzip on and no Range header) Accept-Encoding: gzip; it strips
// Content-Encoding and decodes the body if this layer added gzip. It does
// not set Content-Type or Content-Length; the HTTP/1 codec writes those from
// the request body. Since RetryAndFollowUp re-enters the chain from
// Bridge on every redirect hop, Bridge (not call.run, which only sees the
// first and last request/response) is where the Jar is read and written —
// a redirect to a different host picks up that host's cookies, and
// Set-Cookie headers on intermediate hops are stored rather than dropped.
type Bridge struct {
	Jar *cookiejar.Jar
}

func (b Bridge) Intercept(chain core.Chain) (*core.Response, error) {
	req := chain.Request()
	headers := req.Headers().Clone()

	addedGzip := false
	if req.TransparentGzip() && headers.Get("Accept-Encoding") == "" && headers.Get("Range") == "" {
		headers.Set("Accept-Encoding", "gzip")
		addedGzip = true
	}
	if headers.Get("Host") == "" {
		headers.Set("Host", req.URL().HostHeader())
	}
	if headers.Get("Connection") == "" {
		headers.Set("Connection", "Keep-Alive")
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", "corehttp/1.0")
	}
	if b.Jar != nil && headers.Get("Cookie") == "" {
		if cookieHeader := cookieHeaderFor(b.Jar, req); cookieHeader != "" {
			headers.Set("Cookie", cookieHeader)
		}
	}

	netReq := req.WithHeaders(headers)
	resp, err := chain.Proceed(netReq)
	if err != nil {
		return nil, err
	}

	if b.Jar != nil {
		storeCookies(b.Jar, resp)
	}

	if addedGzip && strings.EqualFold(resp.Headers.Get("Content-Encoding"), "gzip") {
		return decodeGzip(resp), nil
	}
	return resp, nil
}

func cookieHeaderFor(jar *cookiejar.Jar, req *core.Request) string {
	cookies := jar.Cookies(req.URL())
	if len(cookies) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ck := range cookies {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ck.Name)
		b.WriteByte('=')
		b.WriteString(ck.Value)
	}
	return b.String()
}

func storeCookies(jar *cookiejar.Jar, resp *core.Response) {
	values := resp.Headers.Values("Set-Cookie")
	if len(values) == 0 {
		return
	}
	cookies := make([]*cookiejar.Cookie, 0, len(values))
	for _, raw := range values {
		if ck := cookiejar.ParseSetCookie(raw); ck != nil {
			cookies = append(cookies, ck)
		}
	}
	if len(cookies) > 0 {
		jar.SetCookies(resp.Request.URL(), cookies)
	}
}

// decodeGzip strips Content-Encoding/Content-Length and wraps the body in a
// gzip reader, so a caller that never asked for gzip never sees it.
func decodeGzip(resp *core.Response) *core.Response {
	h := resp.Headers.Clone()
	h.RemoveAll("Content-Encoding")
	h.RemoveAll("Content-Length")

	body := resp.Body
	gz := &gzipBody{src: body}
	out := resp.WithHeaders(h)
	return out.WithBody(&core.ResponseBody{Source: gz, Length: -1, ContentType: body.ContentType})
}

type gzipBody struct {
	src    *core.ResponseBody
	reader *gzip.Reader
}

func (g *gzipBody) Read(p []byte) (int, error) {
	if g.reader == nil {
		r, err := gzip.NewReader(g.src)
		if err != nil {
			return 0, err
		}
		g.reader = r
	}
	return g.reader.Read(p)
}

func (g *gzipBody) Close() error {
	var err error
	if g.reader != nil {
		err = g.reader.Close()
	}
	if cerr := g.src.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ io.ReadCloser = (*gzipBody)(nil)
