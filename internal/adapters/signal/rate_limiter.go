package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Signal/internal/core"
)

// SessionRateLimiter bounds how many signaling requests one session may issue
// per interval, sliding window.
type SessionRateLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
}

func NewSessionRateLimiter(limit int, interval time.Duration) *SessionRateLimiter {
	return &SessionRateLimiter{
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *SessionRateLimiter) Allow(sid core.SessionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

func (rl *SessionRateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
