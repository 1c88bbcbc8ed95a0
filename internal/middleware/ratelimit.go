package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"minesweeper-rewards/internal/services"
)

// RateLimiter counts requests per subject and action over a fixed window.
type RateLimiter interface {
	CheckRateLimit(subject, action string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware applies per-player limits to the write endpoints that
// move tokens. Unauthenticated requests pass through.
func RateLimitMiddleware(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		player, ok := Player(c)
		if !ok {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var (
			action string
			limit  int
		)
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/claim"), strings.HasSuffix(path, "/claim-signed"):
			action = "claim"
			limit = services.DefaultRateLimitClaim
		case strings.HasSuffix(path, "/games"), strings.HasSuffix(path, "/complete"):
			action = "game"
			limit = services.DefaultRateLimitGame
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(strings.ToLower(player.Hex()), action, limit, window)
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// IPRateLimiter is a token bucket per client IP, applied in front of every
// route before authentication.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      int
	burst    int
}

func NewIPRateLimiter(rps, burst int) *IPRateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *IPRateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(l.rps)), l.burst)
	l.limiters[key] = lim
	return lim
}

func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}
		c.Next()
	}
}
