package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]pinger
		status int
		redis  string
	}{
		{"healthy", map[string]pinger{"database": ok, "redis": ok}, http.StatusOK, "healthy"},
		{"redis down", map[string]pinger{"database": ok, "redis": down}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, nil)
			h := NewHealthHandler(s)
			h.checks = tt.checks

			e := newEcho(s)
			e.GET("/status", h.CheckHealth)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
			require.Equal(t, tt.status, rec.Code)

			var body struct {
				Status string                       `json:"status"`
				Checks map[string]map[string]string `json:"checks"`
			}
			decode(t, rec, &body)
			assert.Equal(t, "healthy", body.Checks["database"]["status"])
			assert.Equal(t, tt.redis, body.Checks["redis"]["status"])
			if tt.status != http.StatusOK {
				assert.Equal(t, "unhealthy", body.Status)
				assert.Equal(t, "connection refused", body.Checks["redis"]["error"])
			}
		})
	}
}

func TestCheckHealthSkipsUnconfigured(t *testing.T) {
	s := testServer(t, nil)
	h := NewHealthHandler(s)
	assert.Empty(t, h.checks, "no connections, nothing to ping")

	e := newEcho(s)
	e.GET("/status", h.CheckHealth)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
