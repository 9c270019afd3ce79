package app

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per client key. Idle keys expire so
// the table does not grow with every address that ever tried to log in.
type loginLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	limit    rate.Limit
	burst    int
}

// newLoginLimiter allows perMinute attempts per key with a burst of the same
// size. perMinute <= 0 disables throttling.
func newLoginLimiter(perMinute int) *loginLimiter {
	if perMinute <= 0 {
		return &loginLimiter{}
	}
	return &loginLimiter{
		limiters: gocache.New(15*time.Minute, 5*time.Minute),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
}

func (l *loginLimiter) Allow(key string) bool {
	if l == nil || l.limiters == nil {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *loginLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value, ok := l.limiters.Get(key); ok {
		limiter := value.(*rate.Limiter)
		l.limiters.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.SetDefault(key, limiter)
	return limiter
}
