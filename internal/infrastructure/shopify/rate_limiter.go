package shopify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Admin API leaky-bucket defaults: 2 requests/second with a burst of 4
// keeps a single gateway instance comfortably under Shopify's per-shop
// limits.
const (
	defaultRequestsPerSecond = 2
	defaultBurst             = 4
)

// RateLimiter throttles Admin API calls per shop.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	logger   zerolog.Logger
}

// NewRateLimiter creates a per-shop rate limiter with default limits.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(defaultRequestsPerSecond),
		burst:    defaultBurst,
		logger:   logger,
	}
}

// Wait blocks until the shop's bucket permits another request or the
// context is done.
func (l *RateLimiter) Wait(ctx context.Context, shopDomain string) error {
	return l.limiterFor(shopDomain).Wait(ctx)
}

func (l *RateLimiter) limiterFor(shopDomain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[shopDomain]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[shopDomain] = limiter
	}
	return limiter
}
