package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, NewServer(":0").Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestReady(t *testing.T) {
	s := NewServer(":0")
	discord := true
	s.AddCheck("discord", func() bool { return discord })
	s.AddCheck("pipeline", func() bool { return true })

	rec, body := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	discord = false
	rec, body = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, map[string]any{"discord": false, "pipeline": true}, body["checks"])
}

func TestStatus(t *testing.T) {
	s := NewServer(":0")
	rec, _ := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.SetStatus(func() any { return map[string]any{"messages_seen": 3} })
	rec, body := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["messages_seen"])
}

func TestMetrics(t *testing.T) {
	rec, _ := get(t, NewServer(":0").Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
