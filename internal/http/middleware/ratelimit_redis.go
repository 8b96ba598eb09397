package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pocketsync/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the middleware.
// With an empty addr or a failed ping, limits are counted in process memory.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		logger.Info("redis not configured, using in-memory rate limits")
		return
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, using in-memory rate limits", "addr", addr, "error", err)
		client.Close()
		return
	}
	redisClient = client
	logger.Info("redis rate limiter connected", "addr", addr)
}

// CloseRedisRateLimiter releases the shared client.
func CloseRedisRateLimiter() {
	if redisClient != nil {
		redisClient.Close()
		redisClient = nil
	}
}

// ErrRedisDisabled is returned by RedisReady when limits are counted in memory.
var ErrRedisDisabled = errors.New("redis not configured")

// RedisReady reports whether limits are shared through Redis.
func RedisReady(ctx context.Context) error {
	if redisClient == nil {
		return ErrRedisDisabled
	}
	return redisClient.Ping(ctx).Err()
}

// count increments key for the current fixed window, in Redis when
// configured and in memory otherwise. The key and its expiry are created in
// one transaction so a counter never outlives its window. On a Redis error the
// in-memory count is returned along with the error.
func count(ctx context.Context, key string, window time.Duration) (int64, error) {
	if redisClient == nil {
		return fallback.hit(key, window), nil
	}
	var incr *redis.IntCmd
	_, err := redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		logger.Warn("redis rate limit failed, counting in memory", "key", key, "error", err)
		return fallback.hit(key, window), err
	}
	return incr.Val(), nil
}

// RedisRateLimit implements a fixed-window rate limiter per client IP using
// Redis SET NX EX and INCR. key format: rl:<window_seconds>:<ip>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()

		val, err := count(c.Request.Context(), key, window)
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
		}

		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
