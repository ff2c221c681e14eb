package core

import (
	"crypto/tls"
	"time"
)

// Handshake records the negotiated TLS parameters for a Response or a
// CacheEntry (spec.md §3 "handshake (if TLS)", §6 "TLS cipher+cert chain").
type Handshake struct {
	TLSVersion        uint16
	CipherSuite       uint16
	LocalCertificates []*tls.Certificate
	PeerCertificates  [][]byte // raw DER, as stored in the persisted cache
}

// Challenge is a parsed WWW-Authenticate/Proxy-Authenticate entry, fed to an
// Authenticator by RetryAndFollowUp on 401/407 (spec.md §4.1).
type Challenge struct {
	Scheme string
	Realm  string
}

// Authenticator produces a follow-up Request carrying credentials for a
// 401/407 response, or nil to give up. Consulted by RetryAndFollowUp.
type Authenticator interface {
	Authenticate(route *Route, challenge Challenge, response *Response) (*Request, error)
}

// Response is an immutable HTTP response, per spec.md §3.
type Response struct {
	Request    *Request
	Protocol   string // "HTTP/1.1", "HTTP/2"
	StatusCode int
	Status     string // e.g. "200 OK"
	Headers    *Headers
	Body       *ResponseBody
	Handshake  *Handshake // nil for plaintext

	CachedResponse  *Response // non-nil if this response has a cached predecessor
	NetworkResponse *Response // non-nil if this response followed network revalidation

	SentAt     time.Time
	ReceivedAt time.Time
}

// IsSuccessful reports 2xx, per common HTTP convention used by Bridge and
// the cache interceptor's write-eligibility check.
func (r *Response) IsSuccessful() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// IsRedirect reports 3xx.
func (r *Response) IsRedirect() bool { return r.StatusCode >= 300 && r.StatusCode < 400 }

// StripPriorResponses returns a shallow copy of r whose CachedResponse and
// NetworkResponse are replaced by body-less copies, per spec.md §3
// "optional cached-response and network-response references".
func (r *Response) StripPriorResponses() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.CachedResponse = stripBody(r.CachedResponse)
	out.NetworkResponse = stripBody(r.NetworkResponse)
	return &out
}

func stripBody(r *Response) *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Body = nil
	out.CachedResponse = nil
	out.NetworkResponse = nil
	return &out
}

// WithBody returns a shallow copy of r carrying a different body, used when
// Bridge decodes gzip or the cache interceptor substitutes a cached body.
func (r *Response) WithBody(body *ResponseBody) *Response {
	out := *r
	out.Body = body
	return &out
}

// WithHeaders returns a shallow copy of r carrying a replacement header set.
func (r *Response) WithHeaders(h *Headers) *Response {
	out := *r
	out.Headers = h
	return &out
}
