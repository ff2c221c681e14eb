// Package cookiejar implements an in-memory, public-suffix-aware cookie
// store (C10), per spec.md §3 "CookieJar(get(url), set(url, cookies))".
// Domain/path matching follows RFC 6265 §5.1.3-5.1.4, adapted from the
// teacher's cli/cookie_entry.go; the public-suffix boundary itself is
// delegated to golang.org/x/net/publicsuffix rather than hand-maintained,
// per spec.md §1 Non-goals ("no built-in ... browser-cookie UI" — the
// public suffix list is data, not UI, and is exactly the kind of thing this
// exercise prefers to pull from a real dependency).
package cookiejar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/corehttp/corehttp/httpurl"
)

// Cookie mirrors the RFC 6265 Set-Cookie/Cookie attribute set.
type Cookie struct {
	Name  string
	Value string

	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite string
}

type entry struct {
	Cookie
	hostOnly bool
	creation time.Time
}

func (e *entry) id() string { return fmt.Sprintf("%s;%s;%s", e.Domain, e.Path, e.Name) }

func (e *entry) domainMatch(host string) bool {
	if e.Domain == host {
		return true
	}
	return !e.hostOnly && hasDotSuffix(host, e.Domain)
}

func (e *entry) pathMatch(requestPath string) bool {
	if requestPath == e.Path {
		return true
	}
	le := len(e.Path)
	if len(requestPath) >= le && requestPath[:le] == e.Path {
		if e.Path[len(e.Path)-1] == '/' {
			return true
		} else if requestPath[le] == '/' {
			return true
		}
	}
	return false
}

func (e *entry) shouldSend(https bool, host, path string) bool {
	return e.domainMatch(host) && e.pathMatch(path) && (https || !e.Secure)
}

func (e *entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

func hasDotSuffix(s, suffix string) bool {
	return len(s) > len(suffix) && s[len(s)-len(suffix)-1] == '.' && s[len(s)-len(suffix):] == suffix
}

// Jar is a CookieJar keyed by the registrable domain, per spec.md §3.
type Jar struct {
	mu      sync.Mutex
	entries map[string]map[string]entry // registrable domain -> id -> entry
}

// New builds an empty Jar.
func New() *Jar {
	return &Jar{entries: make(map[string]map[string]entry)}
}

// Cookies returns the cookies that should accompany a request to u, in no
// particular cross-cookie order, per RFC 6265 §5.4.
func (j *Jar) Cookies(u *httpurl.URL) []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := canonicalHost(u.Host)
	key, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		key = host
	}
	submap := j.entries[key]
	if submap == nil {
		return nil
	}

	https := u.Scheme == httpurl.HTTPS
	now := time.Now()
	var cookies []*Cookie
	for id, e := range submap {
		if e.expired(now) {
			delete(submap, id)
			continue
		}
		if e.shouldSend(https, host, u.Path) {
			c := e.Cookie
			cookies = append(cookies, &c)
		}
	}
	return cookies
}

// SetCookies stores the cookies parsed from u's response, dropping any
// whose Domain attribute doesn't satisfy the domain-match rule against u's
// host (RFC 6265 §5.3).
func (j *Jar) SetCookies(u *httpurl.URL, cookies []*Cookie) {
	if len(cookies) == 0 {
		return
	}
	host := canonicalHost(u.Host)
	key, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		key = host
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()

	for _, c := range cookies {
		e := entry{Cookie: *c, creation: now}
		if e.Domain == "" {
			e.Domain = host
			e.hostOnly = true
		} else if !domainAndTypeMatch(e.Domain, host) {
			continue
		}
		if e.Path == "" {
			e.Path = defaultPath(u.Path)
		}
		if e.MaxAge < 0 {
			e.Expires = now.Add(-time.Hour)
		} else if e.MaxAge > 0 {
			e.Expires = now.Add(time.Duration(e.MaxAge) * time.Second)
		}

		submap := j.entries[key]
		if submap == nil {
			submap = make(map[string]entry)
			j.entries[key] = submap
		}
		if e.expired(now) {
			delete(submap, e.id())
			continue
		}
		submap[e.id()] = e
	}
}

func domainAndTypeMatch(domain, host string) bool {
	d := strings.TrimPrefix(domain, ".")
	return d == host || hasDotSuffix(host, d)
}

func defaultPath(requestPath string) string {
	if i := strings.LastIndexByte(requestPath, '/'); i > 0 {
		return requestPath[:i]
	}
	return "/"
}

func canonicalHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// ParseSetCookie parses one Set-Cookie header value into a Cookie, per RFC
// 6265 §4.1. Unknown attributes are ignored; a cookie with no Name=Value
// pair is dropped.
func ParseSetCookie(raw string) *Cookie {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil
	}
	name, value, ok := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !ok || name == "" {
		return nil
	}
	ck := &Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		attrName, attrValue, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(attrName)) {
		case "domain":
			ck.Domain = strings.TrimSpace(attrValue)
		case "path":
			ck.Path = strings.TrimSpace(attrValue)
		case "secure":
			ck.Secure = true
		case "httponly":
			ck.HTTPOnly = true
		case "samesite":
			ck.SameSite = strings.TrimSpace(attrValue)
		case "max-age":
			if n, err := strconv.Atoi(strings.TrimSpace(attrValue)); err == nil {
				ck.MaxAge = n
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, strings.TrimSpace(attrValue)); err == nil {
				ck.Expires = t
			}
		}
	}
	return ck
}
