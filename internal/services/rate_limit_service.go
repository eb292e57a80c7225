package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimitService limits how often a user can hit expensive endpoints using
// fixed windows counted in Redis
type RateLimitService struct {
	redis  *redis.Client
	logger *logrus.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(client *redis.Client, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		redis:  client,
		logger: logger,
		now:    time.Now,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Scope      string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Allow counts one request for key in scope and fails with RateLimitError
// once more than limit requests land in the current window. Redis errors
// are logged and the request is let through.
func (s *RateLimitService) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) error {
	if s.redis == nil || limit <= 0 || window < time.Second {
		return nil
	}

	now := s.now()
	bucket := now.Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("rate_limit:%s:%s:%d", scope, key, bucket)

	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).WithField("scope", scope).Warn("Rate limit check failed, allowing request")
		return nil
	}

	if count := incr.Val(); count > int64(limit) {
		retryAfter := time.Unix((bucket+1)*int64(window.Seconds()), 0)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many %s requests. Please try again after %s", scope, retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Scope:      scope,
		}
	}
	return nil
}
