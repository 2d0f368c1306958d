package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/metrics"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/clientip"
)

const (
	RateLimitWindow    = time.Minute
	RateLimitKeyPrefix = "ratelimit:"
)

// WindowCounter increments the request count of a fixed window.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps window counts in Redis so every instance shares them.
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter allows Limit requests per client IP per fixed window. When
// the counter fails it falls back to an in-process token bucket of the
// same rate.
type RateLimiter struct {
	counter  WindowCounter
	limit    int
	window   time.Duration
	fallback *ipLimiters
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRateLimiter(counter WindowCounter, limit int, log logrus.FieldLogger) *RateLimiter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	every := RateLimitWindow / time.Duration(limit)
	return &RateLimiter{
		counter:  counter,
		limit:    limit,
		window:   RateLimitWindow,
		fallback: newIPLimiters(rate.Every(every), limit),
		log:      log,
		now:      time.Now,
	}
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.RealClientIP(r)
		now := l.now()
		windowStart := now.Truncate(l.window)
		reset := windowStart.Add(l.window)

		allowed, remaining := l.allow(r.Context(), ip, windowStart)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, ip string, windowStart time.Time) (bool, int) {
	if l.counter != nil {
		key := RateLimitKeyPrefix + ip + ":" + strconv.FormatInt(windowStart.Unix(), 10)
		count, err := l.counter.Incr(ctx, key, l.window)
		if err == nil {
			return count <= int64(l.limit), max(l.limit-int(count), 0)
		}
		l.log.WithError(err).Warn("rate limit counter unavailable, using in-process limiter")
	}

	lim := l.fallback.get(ip)
	if !lim.Allow() {
		return false, 0
	}
	return true, int(lim.Tokens())
}
