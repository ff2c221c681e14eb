// Package cache implements the HTTP cache (C9), per spec.md §3/§4.1:
// RFC 7234-ish storage keyed by request URL, honoring Cache-Control,
// Vary, and conditional revalidation. Grounded on the entry/rule shape of
// the teacher-adjacent caddyserver-caddy cache middleware, generalized from
// a single in-process map into a directive-aware store.
package cache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/corehttp/corehttp/core"
)

// Entry is a stored response plus the metadata needed to judge freshness and
// to revalidate it, per spec.md §3 "CacheEntry(request, response, storedAt,
// varyHeaders)".
type Entry struct {
	Request    *core.Request
	Response   *core.Response
	Body       []byte
	StoredAt   time.Time
	VaryValues map[string]string // request header values named by the stored response's Vary
}

// directives is the parsed Cache-Control of a request or response.
type directives struct {
	noStore   bool
	noCache   bool
	maxAge    int64 // -1 if absent
	sMaxAge   int64
	mustRevalidate bool
	public    bool
	private   bool
}

func parseDirectives(headerValue string) directives {
	d := directives{maxAge: -1, sMaxAge: -1}
	for _, part := range strings.Split(headerValue, ",") {
		part = strings.TrimSpace(part)
		name, value, _ := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch name {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "must-revalidate":
			d.mustRevalidate = true
		case "public":
			d.public = true
		case "private":
			d.private = true
		case "max-age":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				d.maxAge = n
			}
		case "s-maxage":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				d.sMaxAge = n
			}
		}
	}
	return d
}

// Cache is a bounded in-memory store of Entries keyed by request cache URL.
// Unlike OkHttp's on-disk DiskLruCache journal, corehttp keeps cache state
// in memory only: nothing is written to disk, and entries do not survive a
// process restart.
type Cache struct {
	mu       sync.Mutex
	maxSize  int64
	size     int64
	entries  map[string]*Entry
	lru      []string // most-recently-used last
}

// New builds a Cache bounded to maxSizeBytes of response bodies.
func New(maxSizeBytes int64) *Cache {
	return &Cache{maxSize: maxSizeBytes, entries: make(map[string]*Entry)}
}

func cacheKey(req *core.Request) string {
	return req.Method() + " " + req.CacheURL().String()
}

// Lookup returns a stored Entry usable as a candidate for req, or nil. The
// caller (the Cache interceptor) still judges freshness; Lookup only
// enforces the Vary match and the request's Cache-Control: no-store
// directive.
func (c *Cache) Lookup(req *core.Request) *Entry {
	if req.Method() != core.MethodGet && req.Method() != core.MethodHead {
		return nil
	}
	reqDirectives := parseDirectives(req.Header("Cache-Control"))
	if reqDirectives.noStore {
		return nil
	}

	c.mu.Lock()
	entry, ok := c.entries[cacheKey(req)]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if !varyMatches(entry, req) {
		return nil
	}
	return entry
}

// Freshness reports how much longer entry may be served without
// revalidation, per RFC 7234 §4.2. A zero-or-negative duration means the
// entry is stale and must be revalidated (or refetched) before use.
func Freshness(entry *Entry, now time.Time) time.Duration {
	respDirectives := parseDirectives(entry.Response.Headers.Get("Cache-Control"))
	if respDirectives.noStore || respDirectives.noCache {
		return 0
	}

	age := now.Sub(entry.StoredAt)
	var lifetime time.Duration
	switch {
	case respDirectives.sMaxAge >= 0:
		lifetime = time.Duration(respDirectives.sMaxAge) * time.Second
	case respDirectives.maxAge >= 0:
		lifetime = time.Duration(respDirectives.maxAge) * time.Second
	default:
		lifetime = heuristicLifetime(entry)
	}
	return lifetime - age
}

// heuristicLifetime applies the common 10%-of-(Date-Last-Modified) fallback
// (RFC 7234 §4.2.2) when no explicit freshness directive is present.
func heuristicLifetime(entry *Entry) time.Duration {
	lastModified := entry.Response.Headers.Get("Last-Modified")
	date := entry.Response.Headers.Get("Date")
	if lastModified == "" || date == "" {
		return 0
	}
	lm, err1 := time.Parse(time.RFC1123, lastModified)
	d, err2 := time.Parse(time.RFC1123, date)
	if err1 != nil || err2 != nil || d.Before(lm) {
		return 0
	}
	return d.Sub(lm) / 10
}

// Store records a response as a candidate cache entry, honoring the
// response's Cache-Control: no-store and the request's write-eligibility
// (only GET, 200/203/300/301/404/410/etc. per spec.md §4.1).
func (c *Cache) Store(req *core.Request, resp *core.Response, body []byte) {
	if !writeEligible(req, resp) {
		return
	}
	respDirectives := parseDirectives(resp.Headers.Get("Cache-Control"))
	if respDirectives.noStore {
		return
	}

	entry := &Entry{
		Request:    req,
		Response:   resp,
		Body:       body,
		StoredAt:   time.Now(),
		VaryValues: captureVary(req, resp),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(req)
	if old, ok := c.entries[key]; ok {
		c.size -= int64(len(old.Body))
	}
	c.entries[key] = entry
	c.size += int64(len(body))
	c.lru = append(removeKey(c.lru, key), key)
	c.evictLocked()
}

// Remove invalidates the cached GET entry for req's cache URL, whatever
// req's method; used after a non-GET/HEAD request targeting the same URL
// succeeds (RFC 7234 §4.4).
func (c *Cache) Remove(req *core.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := core.MethodGet + " " + req.CacheURL().String()
	if old, ok := c.entries[key]; ok {
		c.size -= int64(len(old.Body))
		delete(c.entries, key)
		c.lru = removeKey(c.lru, key)
	}
}

func (c *Cache) evictLocked() {
	for c.size > c.maxSize && len(c.lru) > 0 {
		oldest := c.lru[0]
		c.lru = c.lru[1:]
		if e, ok := c.entries[oldest]; ok {
			c.size -= int64(len(e.Body))
			delete(c.entries, oldest)
		}
	}
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

var cacheableStatus = map[int]bool{
	200: true, 203: true, 204: true, 206: true,
	300: true, 301: true, 404: true, 405: true, 410: true, 414: true, 501: true,
}

func writeEligible(req *core.Request, resp *core.Response) bool {
	if req.Method() != core.MethodGet {
		return false
	}
	if !cacheableStatus[resp.StatusCode] {
		return false
	}
	if req.Header("Authorization") != "" {
		return strings.Contains(strings.ToLower(resp.Headers.Get("Cache-Control")), "public")
	}
	return true
}

func captureVary(req *core.Request, resp *core.Response) map[string]string {
	varyHeader := resp.Headers.Get("Vary")
	if varyHeader == "" {
		return nil
	}
	out := make(map[string]string)
	for _, name := range strings.Split(varyHeader, ",") {
		name = strings.TrimSpace(name)
		out[name] = req.Header(name)
	}
	return out
}

func varyMatches(entry *Entry, req *core.Request) bool {
	for name, want := range entry.VaryValues {
		if req.Header(name) != want {
			return false
		}
	}
	return true
}
