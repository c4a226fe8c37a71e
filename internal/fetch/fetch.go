package fetch

import (
	"context"
	"fmt"
	"net/http"
)

// Request describes a remote content fetch. URL is expected to be absolute
// and already normalized by the caller.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// ForceRefresh requests that any cached response for this request be
	// bypassed and replaced.
	ForceRefresh bool
}

// Response is the raw result of a fetch: status, headers and body bytes.
// Freshness metadata stays in the headers; expiration is computed by the
// cache at insertion time.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves remote content. Implementations may block on network
// I/O and must honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Error reports a failed fetch: network failure, timeout, or a response the
// fetcher refuses to accept. A fetch error is never cached as a success.
type Error struct {
	URL   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status implements the HTTP status mapping used by the handlers: a failed
// upstream fetch is reported as a bad gateway.
func (e *Error) Status() (int, string) {
	return http.StatusBadGateway, "upstream fetch failed"
}
