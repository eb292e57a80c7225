package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rideshare/seat-booking-backend/internal/services"
	"github.com/rideshare/seat-booking-backend/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ipLimiters holds one token bucket per client IP. A bucket idle for a full
// window has refilled to burst, so it is dropped on the next sweep.
type ipLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(requests int, window time.Duration) *ipLimiters {
	return &ipLimiters{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		idle:     window,
		now:      time.Now,
	}
}

func (s *ipLimiters) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}

	entry, ok := s.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (s *ipLimiters) sweep(now time.Time) {
	for ip, entry := range s.limiters {
		if now.Sub(entry.lastSeen) >= s.idle {
			delete(s.limiters, ip)
		}
	}
	s.lastSweep = now
}

func (s *ipLimiters) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// IPRateLimit allows requests per client IP at an average of requests per
// window, with the whole window's allowance available as burst
func IPRateLimit(requests int, window time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	if requests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := newIPLimiters(requests, window)

	return func(c *gin.Context) {
		ip := utils.GetRealIP(c)
		if !store.get(ip).Allow() {
			logger.WithField("ip", ip).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Rate limit exceeded. Try again later.",
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// Limiter counts requests for a key in a named scope
type Limiter interface {
	Allow(ctx context.Context, scope, key string, limit int, window time.Duration) error
}

// UserRateLimit limits an authenticated user's requests in scope. It must
// run after AuthMiddleware.
func UserRateLimit(limiter Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUserContext(c)
		if !ok {
			c.Next()
			return
		}

		err := limiter.Allow(c.Request.Context(), scope, user.UserID.String(), limit, window)
		var rateErr *services.RateLimitError
		if errors.As(err, &rateErr) {
			wait := time.Until(rateErr.RetryAfter)
			if wait < 0 {
				wait = 0
			}
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": rateErr.Message,
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
