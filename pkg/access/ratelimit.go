package access

import (
	"sync"
	"time"

	"github.com/uagent/toolcore/pkg/catalog"
)

// Limit defines a sliding-window rate limit
type Limit struct {
	Requests int
	Window   time.Duration
}

// bucket tracks call timestamps for one (role, tool) subject. Each bucket
// has its own mutex so concurrent callers linearize per subject, not on the
// whole table. A retired bucket has been removed from the table and must
// never record another call.
type bucket struct {
	mu      sync.Mutex
	retired bool
	stamps  []time.Time
}

// RateLimiter enforces per-(role, tool) sliding-window limits. Limits are
// keyed by tool category with a "default" fallback.
type RateLimiter struct {
	limits       map[string]Limit
	defaultLimit Limit

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time // test hook
}

// NewRateLimiter creates a limiter from category limits. The "default"
// entry, if present, overrides the built-in fallback of 30 per minute.
func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	defaultLimit := Limit{Requests: 30, Window: time.Minute}
	if l, ok := limits["default"]; ok {
		defaultLimit = l
	}
	return &RateLimiter{
		limits:       limits,
		defaultLimit: defaultLimit,
		buckets:      make(map[string]*bucket),
		now:          time.Now,
	}
}

// Allow performs an atomic check-and-increment for the subject. It returns
// nil and records the call when under the limit, or a *RateLimitError
// without recording anything when the window is full.
func (rl *RateLimiter) Allow(role, toolName string) error {
	limit := rl.limitFor(toolName)

	var b *bucket
	for {
		b = rl.bucketFor(role + "|" + toolName)
		b.mu.Lock()
		if !b.retired {
			break
		}
		// Prune evicted this bucket between the table lookup and the
		// lock; a fresh one is already reachable under the same key.
		b.mu.Unlock()
	}
	defer b.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-limit.Window)

	// Lazy prune of entries outside the trailing window.
	valid := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	b.stamps = valid

	if len(b.stamps) >= limit.Requests {
		retryAfter := b.stamps[0].Add(limit.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitError{
			Role:       role,
			Tool:       toolName,
			Limit:      limit.Requests,
			Window:     limit.Window,
			RetryAfter: retryAfter,
		}
	}

	b.stamps = append(b.stamps, now)
	return nil
}

// Prune evicts subjects whose whole window has expired. Run from the
// maintenance loop; Allow already prunes its own subject lazily.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		empty := true
		for _, ts := range b.stamps {
			// The per-category window differs per key, so use the widest
			// configured window as the conservative cutoff.
			if ts.After(now.Add(-rl.widestWindow())) {
				empty = false
				break
			}
		}
		if empty {
			// Retire under the bucket lock so an Allow that already
			// fetched this pointer re-reads the table instead of
			// recording into an orphan.
			b.retired = true
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Subjects returns the number of tracked (role, tool) subjects
func (rl *RateLimiter) Subjects() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.buckets)
}

func (rl *RateLimiter) limitFor(toolName string) Limit {
	if l, ok := rl.limits[catalog.Category(toolName)]; ok {
		return l
	}
	return rl.defaultLimit
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{}
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimiter) widestWindow() time.Duration {
	widest := rl.defaultLimit.Window
	for _, l := range rl.limits {
		if l.Window > widest {
			widest = l.Window
		}
	}
	return widest
}
