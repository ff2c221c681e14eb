package core

import (
	"fmt"
	"strings"

	"github.com/corehttp/corehttp/httpurl"
)

// HTTP method names. Only GET and HEAD (bodylessMethods below) are barred
// from carrying a body, per spec.md §3 invariant "GET/HEAD cannot have body".
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
	MethodConnect = "CONNECT"
	MethodTrace   = "TRACE"
)

var bodylessMethods = map[string]bool{MethodGet: true, MethodHead: true}

// TagKey identifies an entry in a Request's heterogeneous tag map
// (spec.md §9 "Tag map on Request"). Callers usually key tags by a
// package-private type so keys can't collide across packages.
type TagKey any

// Request is an immutable HTTP request, per spec.md §3. Build one with
// RequestBuilder; once built, no field is mutated in place — RetryAndFollowUp
// and the redirect follow-up path always derive a new Request.
type Request struct {
	method          string
	url             *httpurl.URL
	headers         *Headers
	body            BodySource
	cacheURL        *httpurl.URL // override for the cache key, or nil
	tags            map[TagKey]any
	transparentGzip bool
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns the canonicalized target URL.
func (r *Request) URL() *httpurl.URL { return r.url }

// Headers returns the ordered header multimap; callers must not mutate it
// (use RequestBuilder.Headers to derive a modified copy).
func (r *Request) Headers() *Headers { return r.headers }

// Header returns the first value of name, or "".
func (r *Request) Header(name string) string { return r.headers.Get(name) }

// Body returns the request body source, or nil if there is none.
func (r *Request) Body() BodySource { return r.body }

// CacheURL returns the URL used as the cache key, defaulting to URL().
func (r *Request) CacheURL() *httpurl.URL {
	if r.cacheURL != nil {
		return r.cacheURL
	}
	return r.url
}

// Tag returns the value stored under key, or nil.
func (r *Request) Tag(key TagKey) any { return r.tags[key] }

// TransparentGzip reports whether Bridge is allowed to add
// Accept-Encoding: gzip and auto-decode the response (spec.md §4.1).
func (r *Request) TransparentGzip() bool { return r.transparentGzip }

// IsRetriable reports whether the request may be resent on a new route:
// a request with no body, or one whose body is restartable (spec.md §7).
// Whether part of the body was already written on the failed attempt is
// not tracked and does not affect the result.
func (r *Request) IsRetriable() bool {
	if r.body == nil {
		return true
	}
	return r.body.Restartable()
}

// String renders a one-line method+URL summary, as used in log lines and
// CallError messages.
func (r *Request) String() string {
	return fmt.Sprintf("%s %s", r.method, r.url.String())
}

// RequestBuilder builds a Request via explicit setters, per spec.md §9
// "DSL builders ... avoid hidden control-flow tricks".
type RequestBuilder struct {
	req Request
	err error
}

// NewRequestBuilder starts a builder targeting rawurl.
func NewRequestBuilder(rawurl string) *RequestBuilder {
	b := &RequestBuilder{req: Request{method: MethodGet, headers: NewHeaders(), tags: map[TagKey]any{}}}
	u, err := httpurl.Parse(rawurl)
	if err != nil {
		b.err = err
		return b
	}
	b.req.url = u
	return b
}

// Method sets the HTTP method.
func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.req.method = strings.ToUpper(method)
	return b
}

// Body sets the request body source. Calling this with a non-nil source on
// a GET/HEAD request is a KindMisuse error surfaced by Build.
func (b *RequestBuilder) Body(body BodySource) *RequestBuilder {
	b.req.body = body
	return b
}

// AddHeader appends a header value.
func (b *RequestBuilder) AddHeader(name, value string) *RequestBuilder {
	if b.err == nil && (!ValidHeaderName(name) || !ValidHeaderValue(value)) {
		b.err = NewCallError(KindMisuse, fmt.Sprintf("invalid header %q", name), nil)
		return b
	}
	b.req.headers.Add(name, value)
	return b
}

// SetHeader replaces all values of name.
func (b *RequestBuilder) SetHeader(name, value string) *RequestBuilder {
	if b.err == nil && (!ValidHeaderName(name) || !ValidHeaderValue(value)) {
		b.err = NewCallError(KindMisuse, fmt.Sprintf("invalid header %q", name), nil)
		return b
	}
	b.req.headers.Set(name, value)
	return b
}

// CacheURL overrides the URL used as the cache fingerprint.
func (b *RequestBuilder) CacheURL(u *httpurl.URL) *RequestBuilder {
	b.req.cacheURL = u
	return b
}

// Tag stores value under key in the request's heterogeneous tag map.
func (b *RequestBuilder) Tag(key TagKey, value any) *RequestBuilder {
	b.req.tags[key] = value
	return b
}

// TransparentGzip enables automatic Accept-Encoding: gzip / decode.
func (b *RequestBuilder) TransparentGzip(on bool) *RequestBuilder {
	b.req.transparentGzip = on
	return b
}

// Build validates and returns the immutable Request.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.req.url == nil {
		return nil, NewCallError(KindMisuse, "request has no URL", nil)
	}
	if b.req.body != nil && bodylessMethods[b.req.method] {
		return nil, NewCallError(KindMisuse, fmt.Sprintf("%s requests cannot have a body", b.req.method), nil)
	}
	out := b.req
	out.headers = b.req.headers.Clone()
	tags := make(map[TagKey]any, len(b.req.tags))
	for k, v := range b.req.tags {
		tags[k] = v
	}
	out.tags = tags
	return &out, nil
}

// WithURL returns a shallow copy of r pointed at a new URL, used by the
// redirect follow-up path (spec.md §4.1 RetryAndFollowUp).
func (r *Request) WithURL(u *httpurl.URL) *Request {
	out := *r
	out.url = u
	return &out
}

// WithoutBody returns a shallow copy of r with the body and related headers
// stripped, used when a redirect crosses origin or downgrades method
// (spec.md §4.1 "strips body for cross-origin redirects").
func (r *Request) WithoutBody() *Request {
	out := *r
	out.body = nil
	out.headers = r.headers.Clone()
	out.headers.RemoveAll("Content-Type")
	out.headers.RemoveAll("Content-Length")
	out.headers.RemoveAll("Transfer-Encoding")
	return &out
}

// WithMethod returns a shallow copy of r using a different method, used
// when a 303 downgrades POST to GET.
func (r *Request) WithMethod(method string) *Request {
	out := *r
	out.method = method
	return &out
}

// WithHeaders returns a shallow copy of r carrying a replacement header set.
func (r *Request) WithHeaders(h *Headers) *Request {
	out := *r
	out.headers = h
	return &out
}
