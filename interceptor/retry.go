package interceptor

import (
	"strings"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/httpurl"
)

// maxFollowUps caps the redirect/auth retry loop, per spec.md §4.1
// "RetryAndFollowUp ... gives up after 20 follow-up requests."
const maxFollowUps = 20

// RetryAndFollowUp is the outermost built-in interceptor: it retries a
// request on a recoverable transport failure and follows 3xx redirects and
// 401/407 auth challenges, per spec.md §4.1 and §7.
type RetryAndFollowUp struct {
	Authenticator       core.Authenticator
	ProxyAuthenticator  core.Authenticator
	FollowRedirects     bool
}

func (r *RetryAndFollowUp) Intercept(chain core.Chain) (*core.Response, error) {
	req := chain.Request()
	call := chain.Call()

	var priorResponse *core.Response
	for followUps := 0; ; followUps++ {
		if call.IsCanceled() {
			return nil, core.NewCallError(core.KindCanceled, "call canceled", core.ErrCanceled)
		}

		resp, err := chain.Proceed(req)
		if err != nil {
			if followUps >= maxFollowUps {
				return nil, err
			}
			if !isRecoverable(err) || !req.IsRetriable() {
				return nil, err
			}
			continue // retry the same request on a fresh route
		}

		if priorResponse != nil {
			resp = resp.WithHeaders(resp.Headers)
			resp.CachedResponse = priorResponse.CachedResponse
			resp.NetworkResponse = priorResponse
		}

		next, nextErr := r.followUp(req, resp)
		if nextErr != nil {
			return nil, nextErr
		}
		if next == nil {
			return resp, nil
		}
		if followUps+1 > maxFollowUps {
			return nil, core.NewCallError(core.KindSemantic, "too many follow-ups", core.ErrTooManyFollowUps)
		}

		resp.Body.Close()
		req = next
		priorResponse = resp.StripPriorResponses()
	}
}

func isRecoverable(err error) bool {
	switch core.KindOf(err) {
	case core.KindTransport:
		return true
	default:
		return false
	}
}

// followUp returns the next Request to send for a redirect or auth
// challenge, or nil if resp should be returned to the caller as-is.
func (r *RetryAndFollowUp) followUp(req *core.Request, resp *core.Response) (*core.Request, error) {
	switch resp.StatusCode {
	case 401:
		if r.Authenticator == nil {
			return nil, nil
		}
		return r.Authenticator.Authenticate(nil, challengeFrom(resp, "WWW-Authenticate"), resp)
	case 407:
		if r.ProxyAuthenticator == nil {
			return nil, nil
		}
		return r.ProxyAuthenticator.Authenticate(nil, challengeFrom(resp, "Proxy-Authenticate"), resp)
	case 300, 301, 302, 303, 307, 308:
		if !r.FollowRedirects {
			return nil, nil
		}
		return r.redirect(req, resp)
	default:
		return nil, nil
	}
}

func (r *RetryAndFollowUp) redirect(req *core.Request, resp *core.Response) (*core.Request, error) {
	location := resp.Headers.Get("Location")
	if location == "" {
		return nil, nil
	}
	target, err := req.URL().ResolveReference(location)
	if err != nil {
		return nil, nil
	}

	next := req.WithURL(target)
	switch resp.StatusCode {
	case 303:
		next = next.WithMethod(core.MethodGet).WithoutBody()
	case 301, 302:
		if req.Method() == core.MethodPost {
			next = next.WithMethod(core.MethodGet).WithoutBody()
		}
	}

	if !sameOrigin(req.URL(), target) {
		next = stripAuthorizationAndCookies(next).WithoutBody()
	}
	return next, nil
}

func sameOrigin(a, b *httpurl.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host && a.Port == b.Port
}

func stripAuthorizationAndCookies(req *core.Request) *core.Request {
	h := req.Headers().Clone()
	h.RemoveAll("Authorization")
	h.RemoveAll("Cookie")
	return req.WithHeaders(h)
}

func challengeFrom(resp *core.Response, headerName string) core.Challenge {
	raw := resp.Headers.Get(headerName)
	scheme, rest, _ := strings.Cut(raw, " ")
	realm := ""
	if idx := strings.Index(rest, `realm="`); idx >= 0 {
		rest = rest[idx+len(`realm="`):]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			realm = rest[:end]
		}
	}
	return core.Challenge{Scheme: scheme, Realm: realm}
}
