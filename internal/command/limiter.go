package command

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedAuthors = 4096

// Limiter throttles observation creation per author.
type Limiter struct {
	every time.Duration
	burst int

	mu  sync.Mutex
	per map[string]*rate.Limiter
}

// NewLimiter allows burst creations, refilling one every interval. A zero
// interval disables limiting.
func NewLimiter(every time.Duration, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{every: every, burst: burst, per: map[string]*rate.Limiter{}}
}

func (l *Limiter) Allow(author string, now time.Time) bool {
	if l == nil || l.every <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.per[author]
	if !ok {
		if len(l.per) >= maxTrackedAuthors {
			l.pruneLocked(now)
		}
		lim = rate.NewLimiter(rate.Every(l.every), l.burst)
		l.per[author] = lim
	}
	return lim.AllowN(now, 1)
}

// pruneLocked forgets authors whose bucket has refilled completely.
func (l *Limiter) pruneLocked(now time.Time) {
	for k, lim := range l.per {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.per, k)
		}
	}
}
