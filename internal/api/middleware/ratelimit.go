package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	libredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitConfig configures the per-caller rate limiter.
type RateLimitConfig struct {
	// Requests allowed per Period per caller address.
	Requests int64
	Period   time.Duration
	// RedisURL, when non-empty, backs the counter with Redis so the limit
	// survives process restarts and applies across replicas.
	RedisURL string
}

// NewRateLimiter creates a Gin middleware enforcing a per-caller request rate.
// Exceeding the limit yields a 429 with a body distinguishable from an invalid
// license, so clients do not mistake throttling for a bad key.
func NewRateLimiter(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	if cfg.Requests < 1 || cfg.Period <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", cfg.Requests, cfg.Period)
	}

	rate := limiter.Rate{
		Period: cfg.Period,
		Limit:  cfg.Requests,
	}

	var store limiter.Store
	if cfg.RedisURL != "" {
		opts, err := libredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		store, err = sredis.NewStoreWithOptions(libredis.NewClient(opts), limiter.StoreOptions{
			Prefix: "subkey:ratelimit",
		})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"valid": false,
				"error": "rate_limit_exceeded",
			})
		}),
	), nil
}
