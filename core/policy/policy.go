package policy

import (
	"sync"
	"time"
)

const (
	// FreshnessWindow is the maximum age of a message that may still run a command.
	FreshnessWindow = 5 * time.Minute

	maxSeenIDs = 10000
	pruneCount = 1000
)

// Policy gates inbound messages: a user allowlist fixed for the session,
// a freshness window, and update_id deduplication.
type Policy struct {
	allowed map[int64]bool
	now     func() time.Time

	mu        sync.Mutex
	seen      map[int64]bool
	seenOrder []int64
}

// New creates a Policy that authorizes only the given user IDs.
// An empty list authorizes nobody.
func New(userIDs []int64) *Policy {
	allowed := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		allowed[id] = true
	}
	return &Policy{
		allowed: allowed,
		now:     time.Now,
		seen:    make(map[int64]bool),
	}
}

// WithClock overrides the clock used for the freshness check.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	if now != nil {
		p.now = now
	}
	return p
}

// Authorized reports whether userID may run privileged commands.
func (p *Policy) Authorized(userID int64) bool {
	return p.allowed[userID]
}

// Stale reports whether a message sent at sentAt is too old to act on.
func (p *Policy) Stale(sentAt time.Time) bool {
	return p.now().Sub(sentAt) > FreshnessWindow
}

// Age returns how long ago sentAt was, truncated to seconds.
func (p *Policy) Age(sentAt time.Time) time.Duration {
	return p.now().Sub(sentAt).Truncate(time.Second)
}

// FirstSeen records updateID and reports whether it had not been seen before.
func (p *Policy) FirstSeen(updateID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen[updateID] {
		return false
	}

	// Prune oldest entries if at capacity.
	if len(p.seen) >= maxSeenIDs {
		for i := 0; i < pruneCount && i < len(p.seenOrder); i++ {
			delete(p.seen, p.seenOrder[i])
		}
		p.seenOrder = p.seenOrder[pruneCount:]
	}

	p.seen[updateID] = true
	p.seenOrder = append(p.seenOrder, updateID)
	return true
}
