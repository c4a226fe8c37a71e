package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gadgethost/bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		TimeoutSeconds: 5,
		MaxBodyBytes:   1024,
		UserAgent:      "gadget-bridge-test",
	}
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer server.Close()

	fetcher := NewHTTP(testFetchConfig(), server.Client())

	resp, err := fetcher.Fetch(context.Background(), Request{
		URL:    server.URL,
		Header: http.Header{"X-Custom": []string{"value"}},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, "<html>hello</html>", string(resp.Body))
	assert.Equal(t, "gadget-bridge-test", gotUA)
	assert.Equal(t, "value", gotHeader)
}

func TestFetch_ErrorStatusIsOrdinaryResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewHTTP(testFetchConfig(), server.Client())

	resp, err := fetcher.Fetch(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetch_OversizeBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	fetcher := NewHTTP(testFetchConfig(), server.Client())

	_, err := fetcher.Fetch(context.Background(), Request{URL: server.URL})
	require.Error(t, err)

	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Contains(t, fetchErr.Error(), "exceeds 1024 bytes")

	status, message := fetchErr.Status()
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream fetch failed", message)
}

func TestFetch_TransportErrorReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	fetcher := NewHTTP(testFetchConfig(), nil)

	_, err := fetcher.Fetch(context.Background(), Request{URL: server.URL})
	require.Error(t, err)

	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, server.URL, fetchErr.URL)
}

func TestFetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	fetcher := NewHTTP(testFetchConfig(), server.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, Request{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
