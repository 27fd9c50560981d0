package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter applies a per-client requests-per-minute cap. rpm <= 0
// disables limiting.
type rateLimiter struct {
	rpm int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newRateLimiter(rpm int) *rateLimiter {
	return &rateLimiter{rpm: rpm, clients: map[string]*rate.Limiter{}}
}

func (l *rateLimiter) allow(client string) bool {
	if l.rpm <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.clients[client]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
		l.clients[client] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
