package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimiter creates a Gin middleware for rate limiting backed by an
// in-process store. requests is the number of requests allowed per period.
func NewRateLimiter(requests int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  requests,
	}
	return mgin.NewMiddleware(limiter.New(memory.NewStore(), rate))
}

// NewRedisRateLimiter creates a Gin middleware for rate limiting with state
// shared across server instances via Redis.
func NewRedisRateLimiter(redisURL string, requests int64, period time.Duration) (gin.HandlerFunc, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	store, err := sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: "sevara:ratelimit",
	})
	if err != nil {
		return nil, err
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  requests,
	}
	return mgin.NewMiddleware(limiter.New(store, rate)), nil
}
