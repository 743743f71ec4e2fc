package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDatabaseHealth struct {
	pingErr error
}

func (f *fakeDatabaseHealth) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeDatabaseHealth) Health() map[string]any {
	return map[string]any{"total_conns": 4, "idle_conns": 3}
}

func setupHealthRouter(dbh *fakeDatabaseHealth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHealthHandler(dbh, "1.2.3", zerolog.Nop())
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHealthHealthy(t *testing.T) {
	r := setupHealthRouter(&fakeDatabaseHealth{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   string         `json:"status"`
		Version  string         `json:"version"`
		Database map[string]any `json:"database"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "up", resp.Database["status"])
}

func TestHealthDatabaseRoute(t *testing.T) {
	r := setupHealthRouter(&fakeDatabaseHealth{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/db", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "up", resp["status"])
	assert.Equal(t, float64(4), resp["total_conns"])
}

func TestHealthDatabaseDown(t *testing.T) {
	r := setupHealthRouter(&fakeDatabaseHealth{pingErr: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Status   string         `json:"status"`
		Database map[string]any `json:"database"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Database["status"])
}
