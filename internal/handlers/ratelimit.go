package handlers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// sessionLimiter keeps one token bucket per shopper session. A bucket holds limit tokens and
// refills one token every window/limit.
type sessionLimiter struct {
	every rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*sessionBucket
	swept   time.Time
}

type sessionBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newSessionLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &sessionLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		clock:   clock,
		buckets: make(map[string]*sessionBucket),
	}
}

// Allow spends a token from key's bucket. Requests without a session share one bucket.
func (l *sessionLimiter) Allow(key string) bool {
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &sessionBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	if now.Sub(l.swept) >= l.idle {
		l.swept = now
		for k, other := range l.buckets {
			// An idle bucket has refilled completely, so forgetting it changes nothing.
			if now.Sub(other.lastSeen) >= l.idle {
				delete(l.buckets, k)
			}
		}
	}
	return allowed
}
