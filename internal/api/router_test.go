package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_HealthAndRequestID(t *testing.T) {
	var access bytes.Buffer
	h := NewRouter(Deps{AllowedOrigins: []string{"http://localhost:3099"}, AccessLog: &access, Version: "test"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, access.String(), "GET /health")
}

func TestNewRouter_UninitializedServices(t *testing.T) {
	h := NewRouter(Deps{})

	for _, path := range []string{"/api/scheduler/status", "/api/scheduler/history", "/api/ledger/summary"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/scheduler/start", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_id")
}

func TestNewRouter_NotFound(t *testing.T) {
	h := NewRouter(Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	h := NewRouter(Deps{AllowedOrigins: []string{"http://localhost:3099"}})

	req := httptest.NewRequest("OPTIONS", "/api/scheduler/start", nil)
	req.Header.Set("Origin", "http://localhost:3099")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3099", rec.Header().Get("Access-Control-Allow-Origin"))
}
