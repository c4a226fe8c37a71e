package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gadgethost/bridge/internal/audit"
	"github.com/gadgethost/bridge/internal/fetch"
	"github.com/gadgethost/bridge/internal/httpcache"
	"github.com/gadgethost/bridge/internal/render"
	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/gadgethost/bridge/internal/sign"
	"github.com/gadgethost/bridge/internal/template"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const handlerLibraryDoc = `
<Templates xmlns:os="http://example.org/ns">
  <Namespace prefix="os" url="http://example.org/ns"/>
  <Template tag="os:Panel"><div class="panel">expanded</div></Template>
</Templates>`

func testDriver(t *testing.T, fetcher fetch.Fetcher) *rewrite.Driver {
	t.Helper()

	cache, err := httpcache.NewMemory(100, time.Hour)
	require.NoError(t, err)

	return rewrite.NewDriver(
		cache,
		fetcher,
		rewrite.NewChain[*rewrite.ResponseContent](rewrite.RolePreCache, rewrite.HeaderStripRewriter{}),
		rewrite.NewChain[*rewrite.ResponseContent](rewrite.RolePostCache, rewrite.ViaRewriter{ServiceName: "gadget-bridge"}),
		httpcache.FreshnessPolicy{Default: 5 * time.Minute, Max: 24 * time.Hour},
	)
}

func testRenderer(t *testing.T, fetcher fetch.Fetcher) *render.Renderer {
	t.Helper()

	lib, err := template.LoadLibrary("lib/test.xml", strings.NewReader(handlerLibraryDoc))
	require.NoError(t, err)

	libraries := template.NewStore()
	libraries.Update(lib)

	chain := rewrite.NewChain[*rewrite.MarkupContent](rewrite.RoleGadget,
		render.NewTemplateRewriter(libraries),
		render.NewLocaleRewriter([]language.Tag{language.English}),
	)

	return render.NewRenderer(testDriver(t, fetcher), chain)
}

type stubContentFetcher struct {
	body   string
	status int
	header http.Header
	err    error
}

func (f *stubContentFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Response, error) {
	if f.err != nil {
		return fetch.Response{}, f.err
	}

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}

	header := f.header
	if header == nil {
		header = http.Header{}
	}

	return fetch.Response{StatusCode: status, Header: header.Clone(), Body: []byte(f.body)}, nil
}

func TestHandleRenderGadget_ExpandsTemplates(t *testing.T) {
	fetcher := &stubContentFetcher{
		body: `<html><body><os:Panel></os:Panel></body></html>`,
	}
	handler := handleRenderGadget(testRenderer(t, fetcher))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/gadget/render?url=http://example.org/gadget.xml&locale=en", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `<div class="panel">expanded</div>`)
	assert.Contains(t, w.Body.String(), `lang="en"`)
}

func TestHandleRenderGadget_MissingURL(t *testing.T) {
	handler := handleRenderGadget(testRenderer(t, &stubContentFetcher{}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gadget/render", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRenderGadget_RelativeURLRejected(t *testing.T) {
	handler := handleRenderGadget(testRenderer(t, &stubContentFetcher{}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gadget/render?url=/etc/passwd", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRenderGadget_FetchFailureIsBadGateway(t *testing.T) {
	fetcher := &stubContentFetcher{
		err: &fetch.Error{URL: "http://example.org/gadget.xml", Cause: errors.New("connection refused")},
	}
	handler := handleRenderGadget(testRenderer(t, fetcher))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/gadget/render?url=http://example.org/gadget.xml", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

type failingGadgetStage struct{}

func (failingGadgetStage) Name() string { return "optimizer" }

func (failingGadgetStage) Rewrite(_ context.Context, _ *rewrite.MarkupContent) (*rewrite.MarkupContent, error) {
	return nil, errors.New("optimizer unavailable")
}

func TestHandleRenderGadget_FailedStageAudited(t *testing.T) {
	fetcher := &stubContentFetcher{
		body: `<html><body><os:Panel></os:Panel></body></html>`,
	}

	lib, err := template.LoadLibrary("lib/test.xml", strings.NewReader(handlerLibraryDoc))
	require.NoError(t, err)
	libraries := template.NewStore()
	libraries.Update(lib)

	chain := rewrite.NewChain[*rewrite.MarkupContent](rewrite.RoleGadget,
		failingGadgetStage{},
		render.NewTemplateRewriter(libraries),
	)
	renderer := render.NewRenderer(testDriver(t, fetcher), chain)

	handler := audit.Middleware()(handleRenderGadget(renderer))

	var logged bytes.Buffer
	logger := zerolog.New(&logged)

	req := httptest.NewRequest(http.MethodGet,
		"/gadget/render?url=http://example.org/gadget.xml", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// degraded, not broken: the failing stage is skipped and the rest
	// of the chain still runs
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<div class="panel">expanded</div>`)

	assert.Contains(t, logged.String(), `"stagesFailed":["gadget/optimizer"]`)
}

func TestHandleProxy_ServesContent(t *testing.T) {
	fetcher := &stubContentFetcher{
		body:   "remote content",
		header: http.Header{"Content-Type": []string{"text/css"}},
	}
	handler := handleProxy(testDriver(t, fetcher), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/proxy?url=http://example.org/style.css", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remote content", w.Body.String())
	assert.Equal(t, "text/css", w.Header().Get("Content-Type"))
	assert.Equal(t, "1.1 gadget-bridge", w.Header().Get("Via"))
}

func TestHandleProxy_PreservesErrorStatus(t *testing.T) {
	fetcher := &stubContentFetcher{status: http.StatusNotFound, body: "not here"}
	handler := handleProxy(testDriver(t, fetcher), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/proxy?url=http://example.org/missing.css", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleProxy_DropsStoredContentLength(t *testing.T) {
	// the stored length reflects the body before response chain rewrites;
	// replaying it would mismatch the served body
	fetcher := &stubContentFetcher{
		body:   "remote content",
		header: http.Header{"Content-Length": []string{"999"}},
	}
	handler := handleProxy(testDriver(t, fetcher), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/proxy?url=http://example.org/style.css", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remote content", w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Length"))
}

func TestHandleProxy_SignatureRequired(t *testing.T) {
	signer, err := sign.NewHMAC([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	fetcher := &stubContentFetcher{body: "remote content"}
	handler := handleProxy(testDriver(t, fetcher), signer)

	target := "http://example.org/style.css"

	t.Run("missing signature rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy?url="+target, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("signature over different URL rejected", func(t *testing.T) {
		token, err := signer.Sign(context.Background(), []byte("http://evil.example.org/"))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/proxy?url="+target+"&sig="+token, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("valid signature accepted", func(t *testing.T) {
		token, err := signer.Sign(context.Background(), []byte(target))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/proxy?url="+target+"&sig="+token, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "remote content", w.Body.String())
	})
}

func TestHandleHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	handleHealthCheck().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestErrorStatus(t *testing.T) {
	t.Run("fetch errors map to bad gateway", func(t *testing.T) {
		status, message := errorStatus(&fetch.Error{URL: "http://x", Cause: errors.New("boom")})
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "upstream fetch failed", message)
	})

	t.Run("wrapped fetch errors still map", func(t *testing.T) {
		wrapped := errors.Join(errors.New("outer"), &fetch.Error{URL: "http://x", Cause: errors.New("boom")})
		status, _ := errorStatus(wrapped)
		assert.Equal(t, http.StatusBadGateway, status)
	})

	t.Run("unknown errors are internal", func(t *testing.T) {
		status, message := errorStatus(errors.New("mystery"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, http.StatusText(http.StatusInternalServerError), message)
	})
}

func TestTargetURL(t *testing.T) {
	valid := func(raw string) error {
		r := httptest.NewRequest(http.MethodGet, "/proxy?url="+raw, nil)
		_, err := targetURL(r)
		return err
	}

	assert.NoError(t, valid("http://example.org/a"))
	assert.NoError(t, valid("https://example.org/a?b=c"))
	assert.Error(t, valid(""))
	assert.Error(t, valid("ftp://example.org/a"))
	assert.Error(t, valid("/relative/path"))
}
