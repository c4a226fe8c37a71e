package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FreshnessPolicy bounds the expiration computed for cached responses.
// The effective TTL is derived from the response's own cache metadata and
// then clamped to [Min, Max]; Default applies when the response carries no
// usable metadata.
type FreshnessPolicy struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Response is an immutable HTTP-response-like value held by the cache.
// Callers always receive deep copies; the stored instance is never exposed
// for mutation.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	expiresAt time.Time
}

// NewResponse builds a Response whose expiration is computed from the
// response's cache metadata at insertion time. The expiration never changes
// afterwards, regardless of when the entry is read.
func NewResponse(status int, header http.Header, body []byte, policy FreshnessPolicy, now time.Time) Response {
	r := Response{
		StatusCode: status,
		Header:     header,
		Body:       body,
	}
	r.expiresAt = now.Add(policy.ttlFor(header, now))
	return r.Clone()
}

// NewResponseWithExpiry builds a Response carrying an explicit expiration
// instant. Used when rebuilding a response whose freshness was already
// computed, e.g. after a post-cache rewrite of a cached entry.
func NewResponseWithExpiry(status int, header http.Header, body []byte, expiresAt time.Time) Response {
	r := Response{
		StatusCode: status,
		Header:     header,
		Body:       body,
		expiresAt:  expiresAt,
	}
	return r.Clone()
}

// ExpiresAt returns the instant after which the response is treated as
// absent by the cache.
func (r Response) ExpiresAt() time.Time {
	return r.expiresAt
}

// Expired reports whether the response's freshness window has passed.
func (r Response) Expired(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

// Clone returns a deep copy. Header and body are fully copied so neither
// side can observe the other's mutations.
func (r Response) Clone() Response {
	header := make(http.Header, len(r.Header))
	for k, vs := range r.Header {
		header[k] = append([]string(nil), vs...)
	}

	body := make([]byte, len(r.Body))
	copy(body, r.Body)

	return Response{
		StatusCode: r.StatusCode,
		Header:     header,
		Body:       body,
		expiresAt:  r.expiresAt,
	}
}

// ttlFor derives the entry TTL from standard response cache metadata.
// Precedence: Cache-Control no-store (uncacheable), then max-age, then the
// Expires header, then the policy default. The result is clamped to the
// policy's min/max.
func (p FreshnessPolicy) ttlFor(header http.Header, now time.Time) time.Duration {
	ttl, found := p.Default, false

	if cc := header.Get("Cache-Control"); cc != "" {
		for directive := range strings.SplitSeq(cc, ",") {
			directive = strings.TrimSpace(directive)

			if directive == "no-store" || directive == "no-cache" {
				return 0
			}

			if rest, ok := strings.CutPrefix(directive, "max-age="); ok {
				if secs, err := strconv.Atoi(rest); err == nil {
					ttl, found = time.Duration(secs)*time.Second, true
				}
			}
		}
	}

	if !found {
		if exp := header.Get("Expires"); exp != "" {
			if t, err := http.ParseTime(exp); err == nil {
				if d := t.Sub(now); d > 0 {
					ttl = d
				} else {
					return 0
				}
			}
		}
	}

	if ttl < p.Min {
		ttl = p.Min
	}
	if p.Max > 0 && ttl > p.Max {
		ttl = p.Max
	}
	return ttl
}
