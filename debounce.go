package kurirgo

import (
	"context"
	"sync"
	"time"
)

// Debouncer coordinates calls that share a key. Each new call replaces the
// previous pending waiter for that key: the replaced waiter fails with
// ErrDebounced and the newest call proceeds once the interval elapses with
// no further arrivals.
type Debouncer struct {
	mu    sync.Mutex
	slots map[string]*debounceSlot
}

type debounceSlot struct {
	timer      *time.Timer
	fire       chan struct{}
	superseded chan struct{}
}

// NewDebouncer returns a Debouncer with no pending waiters.
func NewDebouncer() *Debouncer {
	return &Debouncer{
		slots: make(map[string]*debounceSlot),
	}
}

// Wait blocks until one of: the interval elapses with this call still the
// newest for key (returns nil), a newer call supersedes this one (returns
// ErrDebounced), or ctx or token is cancelled first (returns the cause).
// An interval of zero or less disables coordination and returns immediately.
//
// The slot for key is released on every return path; a superseded waiter
// never evicts its successor.
func (d *Debouncer) Wait(ctx context.Context, key string, interval time.Duration, token *CancelToken) error {
	if interval <= 0 {
		return nil
	}

	d.mu.Lock()
	if prev, ok := d.slots[key]; ok {
		// Supersede only if the previous timer has not fired yet;
		// a fired timer means that waiter already won.
		if prev.timer.Stop() {
			close(prev.superseded)
		}
	}
	slot := &debounceSlot{
		fire:       make(chan struct{}),
		superseded: make(chan struct{}),
	}
	slot.timer = time.AfterFunc(interval, func() {
		close(slot.fire)
	})
	d.slots[key] = slot
	d.mu.Unlock()

	defer d.release(key, slot)

	select {
	case <-slot.fire:
		return nil
	case <-slot.superseded:
		return ErrDebounced
	case <-ctx.Done():
		return ErrCancelled
	case <-token.Done():
		return ErrCancelled
	}
}

// release removes the slot if it is still the current one for key. The
// identity check keeps a superseded waiter from deleting its successor.
func (d *Debouncer) release(key string, slot *debounceSlot) {
	slot.timer.Stop()
	d.mu.Lock()
	if cur, ok := d.slots[key]; ok && cur == slot {
		delete(d.slots, key)
	}
	d.mu.Unlock()
}

// Pending returns the number of keys with a waiter currently pending.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}
