package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter is a fixed-window request counter kept in Redis, keyed by actor
// or, for anonymous callers, by client IP.
type RateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewRateLimiter(client redis.Cmdable, perMinute int, logger logrus.FieldLogger) *RateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimiter{
		client: client,
		limit:  perMinute,
		window: time.Minute,
		now:    time.Now,
		logger: logger,
	}
}

// Middleware rejects requests past the limit with 429. Redis failures let the
// request through.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.client == nil || l.limit <= 0 {
			c.Next()
			return
		}

		who := actorID(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		now := l.now()
		windowStart := now.Truncate(l.window)
		key := fmt.Sprintf("ratelimit:%s:%d", who, windowStart.Unix())

		ctx := c.Request.Context()
		pipe := l.client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		if _, err := pipe.Exec(ctx); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
			c.Next()
			return
		}

		if incr.Val() > int64(l.limit) {
			retryAfter := int(windowStart.Add(l.window).Sub(now).Seconds()) + 1
			c.Header("Retry-After", fmt.Sprint(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"code":        codeRateLimited,
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
