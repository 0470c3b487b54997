package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/internal/service"
	"github.com/clipmark/clipmark-api/pkg/config"
	appErrors "github.com/clipmark/clipmark-api/pkg/errors"
	"github.com/clipmark/clipmark-api/pkg/response"
)

// AttemptCounter counts attempts within a fixed window, returning the count
// after the increment.
type AttemptCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter implements AttemptCounter on a Redis client using INCR with
// an expiry set on the first hit of each window.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a Redis client as an AttemptCounter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr increments the key and starts the window on the first attempt.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit throttles requests per client IP using a fixed window counter.
// A counter failure fails open: losing Redis must not lock everyone out.
func RateLimit(counter AttemptCounter, cfg config.RateLimitConfig, logger *zap.Logger, metrics *service.MetricsService) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if !cfg.Enabled || counter == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), c.ClientIP())
		count, err := counter.Incr(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > int64(cfg.MaxAttempts) {
			metrics.RecordRateLimited()
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
