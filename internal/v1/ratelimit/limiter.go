// Package ratelimit implements IP-based rate limiting for WebSocket
// upgrades and the debug log endpoint, backed by an in-memory store.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/metrics"
)

// RateLimiter holds the per-concern limiter instances.
type RateLimiter struct {
	wsIP  *limiter.Limiter
	logIP *limiter.Limiter
	store limiter.Store
}

// NewRateLimiter parses the formatted rates (for example "100-M") and
// returns a limiter backed by a shared memory store.
func NewRateLimiter(wsRate, logRate string) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(wsRate)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}
	logIPRate, err := limiter.NewRateFromFormatted(logRate)
	if err != nil {
		return nil, fmt.Errorf("invalid log IP rate: %w", err)
	}

	store := memory.NewStore()
	return &RateLimiter{
		wsIP:  limiter.New(store, wsIPRate),
		logIP: limiter.New(store, logIPRate),
		store: store,
	}, nil
}

// CheckWebSocket checks whether a WebSocket upgrade from this IP should be
// allowed. Returns true if allowed, false if the limit was exceeded (and
// the rejection has been written).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true // Fail open
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()
	return true
}

// LogMiddleware returns a Gin middleware limiting the debug log endpoint
// per client IP.
func (rl *RateLimiter) LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lctx, err := rl.logIP.Get(ctx, c.ClientIP())
		if err != nil {
			logging.Error(ctx, "Log rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), "ip").Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
