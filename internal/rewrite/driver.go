package rewrite

import (
	"context"
	"time"

	"github.com/gadgethost/bridge/internal/fetch"
	"github.com/gadgethost/bridge/internal/httpcache"
	"golang.org/x/sync/singleflight"
)

// Driver binds the response chains to the cache: it decides per request
// whether to serve from cache or run the fetch and pre-cache path, and
// always applies the post-cache chain before returning.
type Driver struct {
	cache     httpcache.Cache
	fetcher   fetch.Fetcher
	preCache  Chain[*ResponseContent]
	postCache Chain[*ResponseContent]
	policy    httpcache.FreshnessPolicy

	// group collapses concurrent misses for one key into a single fetch.
	group singleflight.Group
}

// NewDriver creates a driver serving requests through cache, fetcher and
// the two response chain roles.
func NewDriver(
	cache httpcache.Cache,
	fetcher fetch.Fetcher,
	preCache Chain[*ResponseContent],
	postCache Chain[*ResponseContent],
	policy httpcache.FreshnessPolicy,
) *Driver {
	return &Driver{
		cache:     cache,
		fetcher:   fetcher,
		preCache:  preCache,
		postCache: postCache,
		policy:    policy,
	}
}

// fetchResult carries the outcome of the shared miss path: the stored
// response plus the pre-cache stage failures observed while producing it.
type fetchResult struct {
	resp     httpcache.Response
	failures []StageFailure
}

// Fetch serves a request through the cache. On a miss the content is
// fetched, run through the pre-cache chain and stored; the post-cache chain
// is applied to every response returned, cached or fresh. Stage failures
// degrade the response rather than failing it, and are reported back so the
// caller can record them.
//
// A fetch failure is surfaced to the caller and never cached; any existing
// entry for the key remains untouched.
func (d *Driver) Fetch(ctx context.Context, req fetch.Request) (httpcache.Response, []StageFailure, error) {
	key := keyFor(req)

	if !req.ForceRefresh {
		if resp, ok := d.cache.Get(ctx, key); ok {
			resp, failures := d.applyPostCache(ctx, resp)
			return resp, failures, nil
		}
	}

	v, err, _ := d.group.Do(key.Digest(), func() (any, error) {
		raw, err := d.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}

		content := NewResponseContent(raw.StatusCode, raw.Header, raw.Body)
		content, failures := Run(ctx, d.preCache, content)

		resp := httpcache.NewResponse(
			content.StatusCode, content.Header, content.Body,
			d.policy, time.Now(),
		)
		d.cache.Add(ctx, key, resp)

		return fetchResult{resp: resp, failures: failures}, nil
	})
	if err != nil {
		return httpcache.Response{}, nil, err
	}

	result := v.(fetchResult)
	resp, postFailures := d.applyPostCache(ctx, result.resp)

	// the pre-cache failures may be shared with collapsed concurrent
	// callers, so they are copied rather than appended to
	failures := postFailures
	if len(result.failures) > 0 {
		failures = append(append([]StageFailure(nil), result.failures...), postFailures...)
	}

	return resp, failures, nil
}

// applyPostCache runs the post-cache chain over a response about to be
// returned, preserving the response's computed expiration.
func (d *Driver) applyPostCache(ctx context.Context, resp httpcache.Response) (httpcache.Response, []StageFailure) {
	if d.postCache.Len() == 0 {
		return resp, nil
	}

	content := NewResponseContent(resp.StatusCode, resp.Header, resp.Body)
	content, failures := Run(ctx, d.postCache, content)

	return httpcache.NewResponseWithExpiry(
		content.StatusCode, content.Header, content.Body,
		resp.ExpiresAt(),
	), failures
}

// keyFor derives the cache key from the request identity. The refresh
// policy rides along on the key without contributing to its identity.
func keyFor(req fetch.Request) httpcache.Key {
	b := new(httpcache.KeyBuilder).
		Set(httpcache.AttrMethod, req.Method).
		Set(httpcache.AttrURL, req.URL)

	if req.ForceRefresh {
		b.Set(httpcache.AttrRefresh, httpcache.RefreshForce)
	}

	return b.Build()
}
