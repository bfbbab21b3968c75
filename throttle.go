package kurirgo

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttler enforces a per-key cooldown: once a call for a key is admitted,
// further calls for that key are rejected until the interval elapses.
// Rejected calls are not queued.
type Throttler struct {
	mu       sync.RWMutex
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewThrottler returns an empty per-key throttler.
func NewThrottler() *Throttler {
	return &Throttler{
		limiters: make(map[string]*throttleEntry),
	}
}

// Allow reports whether a call for key may proceed and, when it may, starts
// the cooldown. The cooldown runs from admission, not from completion, and
// is charged whether the call ultimately succeeds or fails. An interval of
// zero or less disables throttling for the call.
func (t *Throttler) Allow(key string, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}

	t.mu.RLock()
	entry, ok := t.limiters[key]
	t.mu.RUnlock()

	if !ok || entry.interval != interval {
		t.mu.Lock()
		entry, ok = t.limiters[key]
		if !ok || entry.interval != interval {
			entry = &throttleEntry{
				limiter:  rate.NewLimiter(rate.Every(interval), 1),
				interval: interval,
			}
			t.limiters[key] = entry
		}
		t.mu.Unlock()
	}

	return entry.limiter.Allow()
}

// Forget drops the cooldown state for key.
func (t *Throttler) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, key)
}

// Len returns the number of keys with cooldown state.
func (t *Throttler) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.limiters)
}
