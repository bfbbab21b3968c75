package kurirgo

import (
	"context"
	"sync"
)

// CancelToken is a shared, observable cancellation flag with a callback
// registry. The flag transitions false to true exactly once; callbacks
// registered before that transition fire exactly once, in registration order,
// and callbacks registered afterwards fire synchronously. A nil *CancelToken
// behaves as a token that is never cancelled.
//
// The transport checks the token at three checkpoints: immediately before
// sending, immediately after response headers arrive, and continuously while
// the body streams.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
	callbacks []tokenCallback
	nextID    uint64
	done      chan struct{}
}

type tokenCallback struct {
	id uint64
	fn func()
}

// NewCancelToken returns a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel flips the token. The first call fires and clears all registered
// callbacks; subsequent calls are no-ops.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	// Fire outside the lock so callbacks may use the token.
	for _, cb := range callbacks {
		if cb.fn != nil {
			cb.fn()
		}
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// OnCancel registers fn to run when the token is cancelled and returns a
// handle that unregisters it. If the token is already cancelled, fn runs
// synchronously and the returned handle is a no-op.
func (t *CancelToken) OnCancel(fn func()) (remove func()) {
	if t == nil || fn == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.callbacks = append(t.callbacks, tokenCallback{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, cb := range t.callbacks {
			if cb.id == id {
				t.callbacks = append(t.callbacks[:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Done returns a channel closed on cancellation, for use in select loops.
// For a nil token it returns nil, which blocks forever.
func (t *CancelToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Context derives a context from parent that is cancelled when either the
// parent or the token is cancelled. The returned stop function releases the
// token registration and must be called when the context is no longer needed.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if t == nil {
		return ctx, cancel
	}
	remove := t.OnCancel(cancel)
	return ctx, func() {
		remove()
		cancel()
	}
}
