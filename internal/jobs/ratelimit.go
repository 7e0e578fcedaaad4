package jobs

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user sliding window over job creations.
// In-memory state fits a single instance; a multi-instance deployment would
// swap this for a shared counter behind the same Allow surface.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string][]time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one creation attempt and reports whether it fits in the
// window. Rejected attempts are not recorded.
func (l *RateLimiter) Allow(userID string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.gcLocked(cutoff)

	recent := l.seen[userID]
	live := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	if len(live) >= l.limit {
		l.seen[userID] = append([]time.Time(nil), live...)
		return false
	}
	l.seen[userID] = append(append([]time.Time(nil), live...), now)
	return true
}

func (l *RateLimiter) gcLocked(cutoff time.Time) {
	for user, stamps := range l.seen {
		keep := stamps[:0]
		for _, t := range stamps {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		if len(keep) == 0 {
			delete(l.seen, user)
			continue
		}
		l.seen[user] = append([]time.Time(nil), keep...)
	}
}
