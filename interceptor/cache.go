package interceptor

import (
	"bytes"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/corehttp/corehttp/cache"
	"github.com/corehttp/corehttp/core"
)

// Cache is the interceptor implementing the HTTP cache (C9), per spec.md
// §4.1 "Cache: on a fresh hit, short-circuits with the cached response; on a
// stale hit, adds conditional headers and reconciles a 304 with the stored
// entry; on a miss, proceeds and stores an eligible response."
//
// Concurrent misses for the same cache key are coalesced through sf so a
// burst of parallel identical GETs triggers one network fetch instead of
// one per caller.
type Cache struct {
	Store *cache.Cache
	sf    singleflight.Group
}

func (ci *Cache) Intercept(chain core.Chain) (*core.Response, error) {
	req := chain.Request()
	if ci.Store == nil {
		return chain.Proceed(req)
	}

	entry := ci.Store.Lookup(req)
	if entry == nil {
		return ci.fetchAndStore(chain, req)
	}

	if cache.Freshness(entry, time.Now()) > 0 {
		return cachedResponse(entry), nil
	}

	conditional := addConditionalHeaders(req, entry)
	resp, err := chain.Proceed(conditional)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 304 {
		resp.Body.Close()
		merged := mergeHeaders(entry, resp)
		ci.Store.Store(req, merged, entry.Body)
		return cachedResponseFrom(merged, entry.Body), nil
	}

	return ci.storeAndReturn(req, resp)
}

// fetchResult is what fetchAndStore's singleflight-shared section produces:
// the response metadata plus the fully buffered body, so every waiter can
// build its own independent body reader over the same bytes.
type fetchResult struct {
	resp *core.Response
	data []byte
}

func (ci *Cache) fetchAndStore(chain core.Chain, req *core.Request) (*core.Response, error) {
	// Only GET responses are ever stored, and only GET/HEAD misses are
	// coalesced; other methods always hit the network directly and then
	// invalidate any stored GET entry for the same URL.
	if req.Method() != core.MethodGet && req.Method() != core.MethodHead {
		resp, err := chain.Proceed(req)
		if err != nil {
			return nil, err
		}
		ci.Store.Remove(req)
		return ci.storeAndReturn(req, resp)
	}

	v, err, _ := ci.sf.Do(cacheKeyForSF(req), func() (interface{}, error) {
		resp, err := chain.Proceed(req)
		if err != nil {
			return nil, err
		}
		return ci.bufferAndStore(req, resp)
	})
	if err != nil {
		return nil, err
	}
	fr := v.(*fetchResult)
	return responseWithFreshBody(fr.resp, fr.data), nil
}

func cacheKeyForSF(req *core.Request) string {
	return req.Method() + " " + req.CacheURL().String()
}

// bufferAndStore drains resp's one-shot body, records it in the cache, and
// returns a fetchResult every concurrent waiter can build a response from.
func (ci *Cache) bufferAndStore(req *core.Request, resp *core.Response) (*fetchResult, error) {
	if resp.Body == nil {
		return &fetchResult{resp: resp}, nil
	}
	data, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, core.NewCallError(core.KindTransport, "reading response body for cache", err)
	}
	if closeErr != nil {
		return nil, core.NewCallError(core.KindTransport, "closing response body", closeErr)
	}
	ci.Store.Store(req, resp, data)
	return &fetchResult{resp: resp, data: data}, nil
}

// storeAndReturn is bufferAndStore for the non-coalesced (non-GET/HEAD)
// path: build the one response this single caller gets directly.
func (ci *Cache) storeAndReturn(req *core.Request, resp *core.Response) (*core.Response, error) {
	fr, err := ci.bufferAndStore(req, resp)
	if err != nil {
		return nil, err
	}
	return responseWithFreshBody(fr.resp, fr.data), nil
}

func responseWithFreshBody(resp *core.Response, data []byte) *core.Response {
	if resp.Body == nil {
		return resp
	}
	return resp.WithBody(&core.ResponseBody{
		Source:      io.NopCloser(bytes.NewReader(data)),
		Length:      int64(len(data)),
		ContentType: resp.Body.ContentType,
	})
}

func cachedResponse(entry *cache.Entry) *core.Response {
	return cachedResponseFrom(entry.Response, entry.Body)
}

func cachedResponseFrom(resp *core.Response, body []byte) *core.Response {
	out := resp.WithBody(&core.ResponseBody{
		Source: io.NopCloser(bytes.NewReader(body)),
		Length: int64(len(body)),
	})
	out.CachedResponse = resp.StripPriorResponses()
	return out
}

func addConditionalHeaders(req *core.Request, entry *cache.Entry) *core.Request {
	h := req.Headers().Clone()
	if etag := entry.Response.Headers.Get("ETag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lm := entry.Response.Headers.Get("Last-Modified"); lm != "" {
		h.Set("If-Modified-Since", lm)
	}
	return req.WithHeaders(h)
}

// mergeHeaders applies RFC 7234 §4.3.4: a 304's headers update the stored
// entry's, except for headers that must not be updated from a 304.
func mergeHeaders(entry *cache.Entry, notModified *core.Response) *core.Response {
	merged := entry.Response.Headers.Clone()
	notModified.Headers.ForEach(func(name, value string) {
		if name == "Content-Length" {
			return
		}
		merged.Set(name, value)
	})
	return entry.Response.WithHeaders(merged)
}
