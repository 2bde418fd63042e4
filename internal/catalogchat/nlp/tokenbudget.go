package nlp

import (
	"sync"
	"time"
)

// DefaultTokenBudget is the daily token allowance per conversation when no
// explicit budget is configured.
const DefaultTokenBudget = 50_000

// TokenBudget enforces a per-conversation daily token budget. Counters
// reset at midnight UTC. Call Allow before a model call and RecordUsage
// after a successful one.
//
// TokenBudget is safe for concurrent use.
type TokenBudget struct {
	mu     sync.Mutex
	budget int
	now    func() time.Time
	usage  map[string]*dailyUsage
}

type dailyUsage struct {
	tokens  int
	resetAt time.Time
}

// NewTokenBudget returns a TokenBudget allowing dailyBudget tokens per
// conversation per UTC day. Non-positive values select DefaultTokenBudget.
func NewTokenBudget(dailyBudget int) *TokenBudget {
	if dailyBudget <= 0 {
		dailyBudget = DefaultTokenBudget
	}
	return &TokenBudget{budget: dailyBudget, now: time.Now, usage: make(map[string]*dailyUsage)}
}

// Budget returns the configured daily limit.
func (tb *TokenBudget) Budget() int { return tb.budget }

// Allow reports whether the conversation still has budget today. It does
// not consume tokens.
func (tb *TokenBudget) Allow(conversationID string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.resetIfNeeded(conversationID)
	u := tb.usage[conversationID]
	return u == nil || u.tokens < tb.budget
}

// RecordUsage adds tokens to today's total.
func (tb *TokenBudget) RecordUsage(conversationID string, tokens int) {
	if tokens <= 0 {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.resetIfNeeded(conversationID)
	u := tb.usage[conversationID]
	if u == nil {
		u = &dailyUsage{resetAt: nextMidnightUTC(tb.now())}
		tb.usage[conversationID] = u
	}
	u.tokens += tokens
}

// Remaining returns the tokens left today.
func (tb *TokenBudget) Remaining(conversationID string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.resetIfNeeded(conversationID)
	u := tb.usage[conversationID]
	if u == nil {
		return tb.budget
	}
	if rem := tb.budget - u.tokens; rem > 0 {
		return rem
	}
	return 0
}

// Used returns the tokens consumed today.
func (tb *TokenBudget) Used(conversationID string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.resetIfNeeded(conversationID)
	if u := tb.usage[conversationID]; u != nil {
		return u.tokens
	}
	return 0
}

// Must be called with tb.mu held.
func (tb *TokenBudget) resetIfNeeded(conversationID string) {
	u := tb.usage[conversationID]
	if u != nil && !tb.now().UTC().Before(u.resetAt) {
		delete(tb.usage, conversationID)
	}
}

func nextMidnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
