package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
)

// ActionRateLimiter caps refused privileged attempts per connection in a
// sliding window. Once a connection is over the cap, even a correct token is
// turned away until old failures age out.
type ActionRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
}

func NewActionRateLimiter(limit int, interval time.Duration) *ActionRateLimiter {
	return &ActionRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Blocked reports whether uid has used up its refused attempts.
func (rl *ActionRateLimiter) Blocked(uid domain.UserID) bool {
	if rl == nil || rl.limit <= 0 {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(uid, time.Now())) >= rl.limit
}

// Fail records a refused attempt for uid.
func (rl *ActionRateLimiter) Fail(uid domain.UserID) {
	if rl == nil || rl.limit <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	rl.history[uid] = append(rl.prune(uid, now), now)
}

// prune drops attempts older than the window. Caller holds mu.
func (rl *ActionRateLimiter) prune(uid domain.UserID, now time.Time) []time.Time {
	windowStart := now.Add(-rl.interval)
	attempts := rl.history[uid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		delete(rl.history, uid)
		return nil
	}
	rl.history[uid] = fresh
	return fresh
}

// Forget drops the history of a closed connection.
func (rl *ActionRateLimiter) Forget(uid domain.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, uid)
}
