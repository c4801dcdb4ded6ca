// Package ratelimit implements the persisted fixed-window counter used to
// gate client actions, plus an in-process token-bucket pool for transport
// level damping.
package ratelimit

import (
	"errors"
	"time"

	"anonboard/pkg/models"
	"anonboard/pkg/store"
)

// ErrRateLimited is the denial outcome, distinct from validation failure.
var ErrRateLimited = errors.New("rate limited")

// Limiter checks fixed-window budgets against persisted records. The
// check-then-act sequence is not atomic: two concurrent requests can both
// observe count=limit-1 and both pass. That slack is acceptable for abuse
// deterrence and is deliberately not "fixed" with a CAS.
type Limiter struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Limiter {
	return &Limiter{store: s, now: time.Now}
}

// NewWithClock is used by tests to control the window clock.
func NewWithClock(s store.Store, now func() time.Time) *Limiter {
	return &Limiter{store: s, now: now}
}

// Check records a hit for key and reports whether it is allowed: at most
// limit hits per fixed window. Every call mutates persisted state except a
// denial inside an open window.
func (l *Limiter) Check(key string, limit int, window time.Duration) (bool, error) {
	now := l.now().UTC()
	rec, ok, err := l.store.GetRateLimit(key)
	if err != nil {
		return false, err
	}
	if !ok {
		rec = models.RateLimitRecord{Key: key, Count: 1, LastHitTS: now.UnixNano()}
		return true, l.store.PutRateLimit(rec)
	}
	windowStart := now.Add(-window).UnixNano()
	if rec.LastHitTS < windowStart {
		rec.Count = 1
		rec.LastHitTS = now.UnixNano()
		return true, l.store.PutRateLimit(rec)
	}
	if rec.Count >= limit {
		return false, nil
	}
	rec.Count++
	rec.LastHitTS = now.UnixNano()
	return true, l.store.PutRateLimit(rec)
}
