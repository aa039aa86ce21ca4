package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nearair/nearair/internal/api/middleware"
)

func serveRequestID(t *testing.T, incoming string) (ctxID, headerID string) {
	t.Helper()
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/state", http.NoBody)
	if incoming != "" {
		req.Header.Set("X-Request-Id", incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get("X-Request-Id")
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "")

	assert.True(t, strings.HasPrefix(ctxID, "req_"))
	assert.Len(t, ctxID, len("req_")+22)
	assert.Equal(t, ctxID, headerID)
}

func TestRequestID_PreservesWellFormedID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "edge-7f3a.42")

	assert.Equal(t, "edge-7f3a.42", ctxID)
	assert.Equal(t, "edge-7f3a.42", headerID)
}

func TestRequestID_ReplacesMalformedID(t *testing.T) {
	tests := []string{
		"has spaces",
		"new\nline",
		strings.Repeat("a", 65),
	}

	for _, incoming := range tests {
		ctxID, headerID := serveRequestID(t, incoming)
		assert.NotEqual(t, incoming, ctxID)
		assert.True(t, strings.HasPrefix(headerID, "req_"))
	}
}

func TestRequestID_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, id := serveRequestID(t, "")
		assert.False(t, seen[id], "duplicate request ID generated: %s", id)
		seen[id] = true
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
