package main

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gadgethost/bridge/internal/audit"
	"github.com/gadgethost/bridge/internal/fetch"
	"github.com/gadgethost/bridge/internal/render"
	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/gadgethost/bridge/internal/sign"
	"github.com/rs/zerolog/log"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

func handleRenderGadget(renderer *render.Renderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		target, err := targetURL(r)
		if err != nil {
			log.Info().Msgf("invalid render target: %v", err)
			requestError(w, http.StatusBadRequest)
			return
		}

		locale := r.URL.Query().Get("locale")
		refresh := refreshRequested(r)

		entry := audit.Log(r.Context())
		entry.ContentURL = target
		entry.Locale = locale
		entry.Refresh = refresh

		markup, failures, err := renderer.Render(r.Context(), target, locale, refresh)
		entry.StagesFailed = rewrite.FailureStages(failures)
		if err != nil {
			entry.Error = err.Error()
			status, message := errorStatus(err)
			log.Info().Msgf("gadget render failed: %v", err)
			http.Error(w, message, status)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, err = w.Write(markup)
		if err != nil {
			// record failure to log: trying to respond to the client at this
			// point will likely fail
			log.Info().Msgf("failed to write response: %v", err)
			return
		}
	})
}

func handleProxy(driver *rewrite.Driver, signer sign.Signer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		target, err := targetURL(r)
		if err != nil {
			log.Info().Msgf("invalid proxy target: %v", err)
			requestError(w, http.StatusBadRequest)
			return
		}

		entry := audit.Log(r.Context())
		entry.ContentURL = target
		entry.Refresh = refreshRequested(r)

		if signer != nil {
			if !verifyProxySignature(r, signer, target) {
				log.Info().Str("url", target).Msg("proxy signature rejected")
				writeTextError(w, http.StatusForbidden, "invalid or missing signature")
				return
			}
			entry.SignatureOK = true
		}

		resp, failures, err := driver.Fetch(r.Context(), fetch.Request{
			URL:          target,
			ForceRefresh: entry.Refresh,
		})
		entry.StagesFailed = rewrite.FailureStages(failures)
		if err != nil {
			entry.Error = err.Error()
			status, message := errorStatus(err)
			log.Info().Msgf("proxy fetch failed: %v", err)
			writeTextError(w, status, message)
			return
		}

		for k, vs := range resp.Header {
			if k == "Content-Length" {
				// the stored length may not match the body after response
				// chain rewrites
				continue
			}
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		_, err = w.Write(resp.Body)
		if err != nil {
			log.Info().Msgf("failed to write response: %v", err)
			return
		}
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// targetURL extracts and validates the remote content URL from the request.
// Only absolute http/https URLs are accepted.
func targetURL(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		return "", errors.New("url parameter required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("url must be absolute http or https")
	}

	return u.String(), nil
}

// refreshRequested reports whether the client asked to bypass cached
// content.
func refreshRequested(r *http.Request) bool {
	return r.URL.Query().Get("nocache") == "1"
}

// verifyProxySignature checks the sig parameter against the target URL. The
// signature payload must be exactly the target, or the request is rejected.
func verifyProxySignature(r *http.Request, signer sign.Signer, target string) bool {
	token := r.URL.Query().Get("sig")
	if token == "" {
		return false
	}

	payload, err := signer.Verify(r.Context(), token)
	if err != nil {
		return false
	}

	return string(payload) == target
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// writeTextError writes a text/plain error response with custom header
func writeTextError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Gadget-Bridge-Denied", message)
	w.WriteHeader(statusCode)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
