package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// keyLimiter hands out one token bucket per client key. HTTP and gRPC share it
// so a client's budget covers both transports.
type keyLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newKeyLimiter(rps float64, burst int) *keyLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &keyLimiter{rps: rps, burst: burst}
}

// Allow reports whether key may make another request now. A non-positive rate
// disables limiting.
func (l *keyLimiter) Allow(key string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}

func (l *keyLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
