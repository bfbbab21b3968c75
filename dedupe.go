package kurirgo

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// DedupEntry is an in-flight call shared between callers. The owner stores
// a buffered snapshot or an error on completion; every waiter receives its
// own copy of either, never the owner's value.
type DedupEntry struct {
	result  *Result
	err     error
	done    chan struct{}
	mu      sync.Mutex
	waiters int
}

// DedupTracker coalesces concurrent identical calls so only one request
// goes out.
type DedupTracker struct {
	mu      sync.RWMutex
	entries map[string]*DedupEntry
}

// NewDedupTracker returns an in-memory tracker with no in-flight entries.
func NewDedupTracker() *DedupTracker {
	return &DedupTracker{
		entries: make(map[string]*DedupEntry),
	}
}

// GetOrCreateEntry returns the in-flight entry for key and whether the
// caller is its owner. Owners must call Complete exactly once; non-owners
// wait on the entry.
func (dt *DedupTracker) GetOrCreateEntry(key string) (*DedupEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[key]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &DedupEntry{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.entries[key] = entry
	return entry, true
}

// Complete publishes the owner's outcome and releases waiters. res must be
// a buffered snapshot. The entry lingers briefly so stragglers that already
// hold it can still read the outcome.
func (dt *DedupTracker) Complete(key string, res *Result, err error) {
	dt.mu.Lock()
	entry, exists := dt.entries[key]
	dt.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.result = res
	entry.err = err
	close(entry.done)
	entry.mu.Unlock()

	time.AfterFunc(100*time.Millisecond, func() {
		dt.mu.Lock()
		delete(dt.entries, key)
		dt.mu.Unlock()
	})
}

// Wait blocks until the owner completes or ctx is done. The outcome is
// handed back as an independent copy attributed to req: a copy of the
// owner's snapshot on success, a copy of its *Error on failure.
func (entry *DedupEntry) Wait(ctx context.Context, req *Request) (*Result, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		res := entry.result
		err := entry.err
		entry.mu.Unlock()
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				return nil, e.copyFor(req)
			}
			return nil, err
		}
		if res == nil {
			return nil, nil
		}
		return res.copyFor(req, false), nil
	case <-ctx.Done():
		return nil, ErrCancelled
	}
}

// Waiters returns how many callers share the entry, the owner included.
func (entry *DedupEntry) Waiters() int {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.waiters
}

// DedupKeyFunc builds the identity key for coalescing calls.
type DedupKeyFunc func(req *Request) string

// DefaultDedupKeyFunc keys calls by method and URL, folding a hash of the
// buffered body in for mutating verbs.
func DefaultDedupKeyFunc(req *Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method()))
	h.Write([]byte(req.URL().String()))

	switch req.Method() {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if body := req.BodyBytes(); len(body) > 0 {
			sum := sha256.Sum256(body)
			h.Write(sum[:])
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DedupCondition decides whether a call takes part in deduplication.
type DedupCondition func(req *Request) bool

// DefaultDedupCondition coalesces safe idempotent methods with buffered
// bodies; streaming calls are never coalesced.
func DefaultDedupCondition(req *Request) bool {
	if req.Streaming() {
		return false
	}
	switch req.Method() {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
