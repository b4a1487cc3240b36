package signaling

import (
	"sync"
	"time"

	"github.com/dkeye/intercom/internal/core"
)

// rateLimiter is a sliding-window limiter over requests from one session,
// grounded on the teacher's RoomRateLimiter
// (internal/adapters/signal/rate_limiter.go), generalized from a per-user
// chat-room key to a per-session key since sessions authenticate before
// they have a client id.
type rateLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
}

func newRateLimiter(limit int, interval time.Duration) *rateLimiter {
	return &rateLimiter{history: make(map[core.SessionID][]time.Time), limit: limit, interval: interval}
}

func (rl *rateLimiter) allow(sid core.SessionID) bool {
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

func (rl *rateLimiter) forget(sid core.SessionID) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}
