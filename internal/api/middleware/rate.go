package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/config"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
)

// idleLimiterTTL is how long an unused limiter is kept.
const idleLimiterTTL = 10 * time.Minute

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig returns the per-IP defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// RateLimitFromConfig maps the RATE_LIMIT_* settings.
func RateLimitFromConfig(cfg config.RateLimitConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// limiterSet holds one token bucket per key and drops buckets that have not
// been used for idleLimiterTTL.
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastSweep) > idleLimiterTTL {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > idleLimiterTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	limiter := e.limiter
	s.mu.Unlock()

	return limiter.AllowN(now, 1)
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig, metrics *monitoring.Metrics) gin.HandlerFunc {
	clients := newLimiterSet(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !clients.allow(c.ClientIP()) {
			metrics.RecordRateLimited("ip")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig, metrics *monitoring.Metrics) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			metrics.RecordRateLimited("global")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// MessageLimiter limits how many messages each owner may send per minute.
// It is shared by the HTTP and WebSocket surfaces.
type MessageLimiter struct {
	owners  *limiterSet
	metrics *monitoring.Metrics
}

// NewMessageLimiter allows perMinute messages per owner with an equal burst.
// A non-positive perMinute disables the limit.
func NewMessageLimiter(perMinute int, metrics *monitoring.Metrics) *MessageLimiter {
	if perMinute <= 0 {
		return &MessageLimiter{metrics: metrics}
	}
	return &MessageLimiter{
		owners:  newLimiterSet(rate.Limit(float64(perMinute)/60), perMinute),
		metrics: metrics,
	}
}

// Allow consumes one message token for owner.
func (l *MessageLimiter) Allow(owner int64) bool {
	if l == nil || l.owners == nil {
		return true
	}
	if l.owners.allow(strconv.FormatInt(owner, 10)) {
		return true
	}
	l.metrics.RecordRateLimited("owner")
	return false
}

// Messages is the gin form of Allow, keyed by the resolved owner.
func (l *MessageLimiter) Messages() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(OwnerID(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many messages, slow down",
			})
			return
		}
		c.Next()
	}
}
