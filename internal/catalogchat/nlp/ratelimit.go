package nlp

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the maximum number of model calls allowed per
	// conversation per minute when no explicit limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-conversation sliding-window limit on model
// calls. Stale timestamps are pruned on every Allow, so memory stays
// bounded to O(limit) entries per active conversation.
//
// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[string][]time.Time
}

// NewRateLimiter returns a RateLimiter that allows at most limit calls per
// conversation within window. Non-positive values select the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string][]time.Time),
	}
}

// Allow reports whether the conversation may make another call and, if so,
// records it.
func (r *RateLimiter) Allow(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(conversationID, now)
	if len(valid) >= r.limit {
		r.counters[conversationID] = valid
		return false
	}
	r.counters[conversationID] = append(valid, now)
	return true
}

// Remaining returns how many calls the conversation can still make in the
// current window.
func (r *RateLimiter) Remaining(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rem := r.limit - len(r.prune(conversationID, r.now()))
	if rem < 0 {
		return 0
	}
	return rem
}

func (r *RateLimiter) prune(conversationID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.counters[conversationID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
