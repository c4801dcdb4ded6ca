package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Pool keeps one token-bucket limiter per client key for request-level
// throttling in front of the API. Unlike Limiter, it is purely in-process.
type Pool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Pool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether a request for key may proceed right now.
func (p *Pool) Allow(key string) bool {
	return p.get(key).Allow()
}
