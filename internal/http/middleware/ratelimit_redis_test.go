package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

func ownerRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.POST("/sync", func(c *gin.Context) {
		c.Set(OwnerKey, c.GetHeader("X-Owner"))
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func postAs(r *gin.Engine, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("X-Owner", owner)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOwnerRateLimit_RedisErrorCountsInMemory(t *testing.T) {
	redisClient = redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	fallback = newMemoryLimiter()
	t.Cleanup(CloseRedisRateLimiter)

	r := ownerRouter(OwnerRateLimit("sync", 1, time.Minute))

	w := postAs(r, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("first request = %d; want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Error"); got != "redis-error" {
		t.Fatalf("X-RateLimit-Error = %q; want redis-error", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q; want 0", got)
	}

	if w := postAs(r, "alice"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d; want 429 from the in-memory count", w.Code)
	}
}

func TestRedisRateLimit_RedisErrorCountsInMemory(t *testing.T) {
	redisClient = redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	fallback = newMemoryLimiter()
	t.Cleanup(CloseRedisRateLimiter)

	r := gin.New()
	r.GET("/ws", RedisRateLimit(1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v; want [200 429]", codes)
	}
}

// Runs only if REDIS_ADDR is set.
func TestOwnerRateLimit_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	InitRedisRateLimiter(addr, os.Getenv("REDIS_PASSWORD"), db)
	t.Cleanup(CloseRedisRateLimiter)
	if redisClient == nil {
		t.Fatalf("redis at %s not reachable", addr)
	}

	scope := "sync-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	window := 10 * time.Second
	key := "owner_rl:" + scope + ":alice:10"
	ctx := context.Background()
	t.Cleanup(func() { redisClient.Del(ctx, key) })

	r := ownerRouter(OwnerRateLimit(scope, 2, window))

	for i, want := range []string{"1", "0"} {
		w := postAs(r, "alice")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d; want 200", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Error") != "" {
			t.Fatalf("request %d reported a redis error", i+1)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" || w.Header().Get("X-RateLimit-Remaining") != want {
			t.Fatalf("request %d headers limit=%s remaining=%s", i+1,
				w.Header().Get("X-RateLimit-Limit"), w.Header().Get("X-RateLimit-Remaining"))
		}
	}

	if w := postAs(r, "alice"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d; want 429", w.Code)
	}
	if w := postAs(r, "bob"); w.Code != http.StatusOK {
		t.Fatalf("other owner = %d; want 200", w.Code)
	}

	n, err := redisClient.Get(ctx, key).Int64()
	if err != nil || n != 3 {
		t.Fatalf("counter = %d, %v; want 3", n, err)
	}
	ttl, err := redisClient.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 || ttl > window {
		t.Fatalf("ttl = %v, %v; want within (0, %v]", ttl, err, window)
	}
	redisClient.Del(ctx, "owner_rl:"+scope+":bob:10")
}
