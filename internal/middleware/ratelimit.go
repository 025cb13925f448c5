package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

var rateLimitedCounter = metrics.GetOrCreateCounter("http_rate_limited_total")

type RateLimitConfig struct {
	// PerSecond is the sustained rate per client; zero disables limiting.
	PerSecond float64
	Burst     int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastPrune time.Time
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *RateLimiter) Allow(client string) bool {
	if rl.cfg.PerSecond <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.PerSecond), rl.cfg.Burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.cfg.IdleTTL {
		return
	}
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastSeen) >= rl.cfg.IdleTTL {
			delete(rl.clients, ip)
		}
	}
	rl.lastPrune = now
}

func (rl *RateLimiter) WithRateLimit(c *gin.Context) {
	if !rl.Allow(c.ClientIP()) {
		rateLimitedCounter.Inc()
		retry := 1
		if rl.cfg.PerSecond > 0 && rl.cfg.PerSecond < 1 {
			retry = int(1/rl.cfg.PerSecond) + 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": "too many requests",
		})
		return
	}
	c.Next()
}
