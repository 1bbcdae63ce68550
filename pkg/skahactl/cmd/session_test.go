package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencadc/skahactl/pkg/skahactl/client"
)

func newSkahaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestSessionListCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/v0/session", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]client.Session{
			{ID: "abc123", Name: "analysis", Type: "headless", Status: "Running"},
		})
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "Running")
}

func TestSessionListCommandJSON(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]client.Session{{ID: "abc123"}})
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok", "-o", "json",
		"session", "list")
	require.NoError(t, err)

	var sessions []client.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "abc123", sessions[0].ID)
}

func TestSessionGetCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/session/abc123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(client.Session{ID: "abc123", Status: "Running"})
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "get", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "abc123")

	// info is an alias of get.
	out, err = execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "info", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "abc123")
}

func TestSessionCreateCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "analysis", r.PostForm.Get("name"))
		assert.Equal(t, "headless", r.PostForm.Get("type"))
		_, _ = w.Write([]byte("new-id\n"))
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "create", "--name", "analysis", "--image", "images.canfar.net/skaha/terminal:1.1.2")
	require.NoError(t, err)
	assert.Contains(t, out, "new-id")
}

func TestSessionCreateCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, tempConfigPath(t),
		"--server", "https://example.org", "--token", "tok",
		"session", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestSessionCreateCommandBadEnv(t *testing.T) {
	_, err := execute(t, tempConfigPath(t),
		"--server", "https://example.org", "--token", "tok",
		"session", "create", "--name", "x", "--image", "img", "--env", "NOVALUE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY=VALUE")
}

func TestSessionLogsCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "logs", r.URL.Query().Get("view"))
		_, _ = w.Write([]byte("container log\n"))
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "logs", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "container log\n", out)
}

func TestSessionDestroyCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "destroy", "one", "two")
	require.NoError(t, err)
	assert.Contains(t, out, "Destroyed 2 session(s)")

	_, err = execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "destroy")
	require.Error(t, err)
}

func TestSessionStatsCommand(t *testing.T) {
	server := newSkahaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stats", r.URL.Query().Get("view"))
		_, _ = w.Write([]byte(`{"instances":{"total":3}}`))
	})

	out, err := execute(t, tempConfigPath(t),
		"--server", server.URL, "--token", "tok",
		"session", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "3")
}
