package ratelimit

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	xhttp "SalesCast/pkg/http"
)

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter keeps one token bucket per key. Buckets idle longer than ttl are
// evicted on the next Allow.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*client
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	lastGC  time.Time
	nowFunc func() time.Time
}

func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		m:       make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
		nowFunc: time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.nowFunc()
	l.mu.Lock()
	c, ok := l.m[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = c
	}
	c.seen = now
	if now.Sub(l.lastGC) > l.ttl {
		for k, v := range l.m {
			if now.Sub(v.seen) > l.ttl {
				delete(l.m, k)
			}
		}
		l.lastGC = now
	}
	l.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the per-client rate with 429.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{
					xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many forecast requests", 429),
				})
			}
			return next(c)
		}
	}
}
