package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DatabaseHealth is the subset of the database layer the health handler needs.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// HealthHandler serves liveness and readiness information.
type HealthHandler struct {
	db      DatabaseHealth
	version string
	started time.Time
	logger  zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DatabaseHealth, version string, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		version: version,
		started: time.Now(),
		logger:  logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterRoutes registers health routes on the given router group.
func (h *HealthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.Overall)
	r.GET("/health/db", h.Database)
}

// Overall returns the service health including the database connection state.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "up"
	httpStatus := http.StatusOK
	overall := "healthy"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database ping failed")
		dbStatus = "down"
		overall = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	database := gin.H{"status": dbStatus}
	for k, v := range h.db.Health() {
		database[k] = v
	}

	c.JSON(httpStatus, gin.H{
		"status":   overall,
		"version":  h.version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": database,
	})
}

// Database returns the database connection state and pool statistics.
// GET /health/db
func (h *HealthHandler) Database(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "up"}
	for k, v := range h.db.Health() {
		body[k] = v
	}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database ping failed")
		body["status"] = "down"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}
