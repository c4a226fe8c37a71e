package rewrite

import (
	"context"
	"fmt"
)

// uncacheableHeaders are connection-scoped or user-scoped headers that must
// not survive into a shared cache entry.
var uncacheableHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Set-Cookie",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HeaderStripRewriter removes connection- and user-scoped headers from a
// response before it is cached. Intended for the pre-cache chain.
type HeaderStripRewriter struct{}

func (HeaderStripRewriter) Name() string {
	return "strip-headers"
}

func (HeaderStripRewriter) Rewrite(_ context.Context, content *ResponseContent) (*ResponseContent, error) {
	for _, h := range uncacheableHeaders {
		content.Header.Del(h)
	}
	return content, nil
}

// ViaRewriter appends this service to the response's Via header. Intended
// for the post-cache chain, marking every served response whether it came
// from cache or a fresh fetch.
type ViaRewriter struct {
	// ServiceName identifies this intermediary in the Via header.
	ServiceName string
}

func (v ViaRewriter) Name() string {
	return "via"
}

func (v ViaRewriter) Rewrite(_ context.Context, content *ResponseContent) (*ResponseContent, error) {
	content.Header.Add("Via", fmt.Sprintf("1.1 %s", v.ServiceName))
	return content, nil
}
