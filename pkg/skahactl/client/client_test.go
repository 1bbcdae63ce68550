package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(append([]Option{WithServer(server.URL + "/skaha")}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewRequiresServer(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server is required")

	_, err = New(WithServer(""))
	require.Error(t, err)

	_, err = New(WithServer("://bad"))
	require.Error(t, err)
}

func TestRequestHeaders(t *testing.T) {
	var captured *http.Request
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		_, _ = w.Write([]byte("{}"))
	}), WithToken("secret-token"), WithUserAgent("skahactl/test"))

	var out map[string]any
	require.NoError(t, c.do(context.Background(), http.MethodGet, "v0/context", nil, &out))

	require.NotNil(t, captured)
	assert.Equal(t, "/skaha/v0/context", captured.URL.Path)
	assert.Equal(t, "Bearer secret-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "skahactl/test", captured.Header.Get("User-Agent"))
	assert.NotEmpty(t, captured.Header.Get("X-Request-ID"))
	assert.Equal(t, "application/json", captured.Header.Get("Accept"))
}

func TestQueryPreserved(t *testing.T) {
	var captured string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.RawQuery
		_, _ = w.Write([]byte("[]"))
	}))

	var out []Session
	require.NoError(t, c.do(context.Background(), http.MethodGet, "v0/session?status=Running", nil, &out))
	assert.Equal(t, "status=Running", captured)
}

func TestDoDecodesError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not allowed"}`))
	}))

	err := c.do(context.Background(), http.MethodGet, "v0/session", nil, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "not allowed", httpErr.Message)
	assert.Contains(t, err.Error(), "403")
}

func TestDoPlainTextError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))

	err := c.do(context.Background(), http.MethodGet, "v0/session/missing", nil, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "session not found", httpErr.Message)
}

func TestDoEmptyErrorBodyFallsBackToStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := c.do(context.Background(), http.MethodGet, "v0/session", nil, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.NotEmpty(t, httpErr.Message)
}

func TestGetText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("line one\nline two\n"))
	}))

	text, err := c.getText(context.Background(), "v0/session/abc?view=logs")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", text)
}

func TestWithLoggerNilKeepsDefault(t *testing.T) {
	c, err := New(WithServer("https://example.org/skaha"), WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, c.log)
}

func TestWithTLSConfigBadCAFile(t *testing.T) {
	_, err := New(WithServer("https://example.org"), WithTLSConfig("/nonexistent/ca.pem", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA file")
}

func TestWithClientCertificateMissingFile(t *testing.T) {
	_, err := New(WithServer("https://example.org"), WithClientCertificate("/nonexistent/proxy.pem"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load client certificate")
}
