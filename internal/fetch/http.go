package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gadgethost/bridge/internal/config"
	"github.com/rs/zerolog/log"
)

// HTTPFetcher fetches remote content over HTTP using a shared client.
// Telemetry is inherited from the transport configured on the client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewHTTP creates a fetcher from configuration. The supplied client may be
// nil, in which case http.DefaultClient (and any telemetry transport wired
// onto it) is used.
func NewHTTP(cfg config.FetchConfig, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Fetch performs the request, honouring ctx for cancellation and the
// configured timeout. Any transport failure or over-limit body is reported
// as a *Error; HTTP error statuses are returned as ordinary responses for
// the caller to interpret.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return Response{}, &Error{URL: req.URL, Cause: err}
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Response{}, &Error{URL: req.URL, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return Response{}, &Error{URL: req.URL, Cause: err}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return Response{}, &Error{
			URL:   req.URL,
			Cause: fmt.Errorf("response body exceeds %d bytes", f.maxBodyBytes),
		}
	}

	log.Debug().
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched remote content")

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
