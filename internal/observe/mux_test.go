package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimMethod(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{
			name:     "GET method with path",
			pattern:  "GET /gadget/render",
			expected: "/gadget/render",
		},
		{
			name:     "wildcard route",
			pattern:  "GET /proxy/{path...}",
			expected: "/proxy/{path...}",
		},
		{
			name:     "path without method",
			pattern:  "/gadget/render",
			expected: "/gadget/render",
		},
		{
			name:     "invalid method prefix untouched",
			pattern:  "INVALID /path",
			expected: "INVALID /path",
		},
		{
			name:     "lowercase method not stripped",
			pattern:  "get /path",
			expected: "get /path",
		},
		{
			name:     "empty string",
			pattern:  "",
			expected: "",
		},
		{
			name:     "method without trailing space",
			pattern:  "GET",
			expected: "GET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimMethod(tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMux_RoutesRequests(t *testing.T) {
	inner := http.NewServeMux()
	mux := NewMux(inner)

	mux.Handle("GET /traced", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	mux.HandleUntraced("GET /untraced", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/traced", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/untraced", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
