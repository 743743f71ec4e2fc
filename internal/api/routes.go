// Package api wires the HTTP surface of the Subkey server.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/api/handlers"
	"github.com/subrite/subkey/internal/api/middleware"
	"github.com/subrite/subkey/internal/config"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
	"github.com/subrite/subkey/internal/metrics"
	"github.com/subrite/subkey/internal/webhooks"
)

// RouterConfig carries everything the router needs to assemble the API.
type RouterConfig struct {
	Config  *config.ServerConfig
	DB      *db.DB
	Metrics *metrics.Metrics
	Version string
	Logger  zerolog.Logger
}

// NewRouter builds the gin engine with all middleware and routes attached.
func NewRouter(rc RouterConfig) (*gin.Engine, error) {
	if rc.Config.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(rc.Logger))
	r.Use(middleware.CORS(rc.Config.AllowedOrigins, rc.Config.Environment))

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	rateLimiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Requests: rc.Config.RateLimitRequests,
		Period:   rc.Config.RateLimitPeriod,
		RedisURL: rc.Config.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	codec := licensekey.NewCodec([]byte(rc.Config.LicenseSecret))
	verifier := webhooks.NewVerifier([]byte(rc.Config.WebhookSecret))
	processor := webhooks.NewProcessor(rc.DB, codec, rc.Logger)

	v1 := r.Group("/api/v1")

	handlers.NewHealthHandler(rc.DB, rc.Version, rc.Logger).RegisterRoutes(v1)
	handlers.NewLicensesHandler(rc.DB, rc.Metrics, rc.Logger).RegisterRoutes(v1, rateLimiter)
	handlers.NewDevicesHandler(rc.DB, rc.Config.MaxDevices, rc.Metrics, rc.Logger).RegisterRoutes(v1)
	handlers.NewWebhooksHandler(verifier, processor, rc.Metrics, rc.Logger).RegisterRoutes(v1)

	// Operator endpoints stay dark unless a token is configured.
	if rc.Config.AdminToken != "" {
		admin := v1.Group("", middleware.AdminAuth(rc.Config.AdminToken))
		handlers.NewAdminHandler(rc.DB, rc.Logger).RegisterRoutes(admin)
	}

	if rc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rc.Metrics.Handler()))
	}

	return r, nil
}
