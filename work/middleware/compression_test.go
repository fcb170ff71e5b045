package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func TestGzipMiddlewareCompresses(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stream-logs", nil)
	req.Header.Set("Accept-Encoding", "deflate, gzip;q=0.9")
	rec := httptest.NewRecorder()

	GzipMiddleware(jsonHandler)(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, string(body))
}

func TestGzipMiddlewarePassThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stream-logs", nil)
	rec := httptest.NewRecorder()

	GzipMiddleware(jsonHandler)(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, `{"success":true}`, rec.Body.String())
}

func TestAcceptsGzip(t *testing.T) {
	cases := map[string]bool{
		"":                  false,
		"gzip":              true,
		"br, GZIP":          true,
		"deflate":           false,
		"x-gzip-compatible": false,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", header)
		assert.Equal(t, want, AcceptsGzip(req), header)
	}
}
