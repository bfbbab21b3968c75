package kurirgo

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

const dedupeTestURL = "http://example.com/test"

func newDedupeRequest(t *testing.T, method string, body any) *Request {
	t.Helper()
	req, err := NewRequest(method, dedupeTestURL, body)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	return req
}

func TestDedupTrackerOwnerAndWaiter(t *testing.T) {
	tracker := NewDedupTracker()

	key := "test-key"
	_, isOwner := tracker.GetOrCreateEntry(key)

	// First call should be the owner
	if !isOwner {
		t.Error("First call should be the owner")
	}

	// Second call should not be the owner
	entry2, isOwner2 := tracker.GetOrCreateEntry(key)
	if isOwner2 {
		t.Error("Second call should not be the owner")
	}

	// Owner publishes its snapshot
	owned := NewResult(200, nil, []byte("shared"))
	tracker.Complete(key, owned, nil)

	waiterReq := newDedupeRequest(t, http.MethodGet, nil)
	res, err := entry2.Wait(context.Background(), waiterReq)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if res == owned {
		t.Error("Waiter should receive an independent copy, not the owner's Result")
	}
	if res.StatusCode() != 200 {
		t.Errorf("Expected status 200, got %d", res.StatusCode())
	}
	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	if string(body) != "shared" {
		t.Errorf("Expected body %q, got %q", "shared", string(body))
	}
	if res.Request() != waiterReq {
		t.Error("Copy should be attributed to the waiter's request")
	}
	if res.Attempts() != 0 {
		t.Errorf("Expected 0 attempts on a coalesced copy, got %d", res.Attempts())
	}
	if res.FromCache() {
		t.Error("Coalesced copy should not be marked as a cache hit")
	}
}

func TestDedupEntryWaitError(t *testing.T) {
	tracker := NewDedupTracker()

	entry, isOwner := tracker.GetOrCreateEntry("failing")
	if !isOwner {
		t.Fatal("First call should be the owner")
	}

	wantErr := fmt.Errorf("upstream exploded")
	tracker.Complete("failing", nil, wantErr)

	res, err := entry.Wait(context.Background(), newDedupeRequest(t, http.MethodGet, nil))
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != wantErr {
		t.Errorf("Expected owner's error, got %v", err)
	}
}

func TestDedupEntryWaitContextCancel(t *testing.T) {
	tracker := NewDedupTracker()

	entry, _ := tracker.GetOrCreateEntry("never-completes")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := entry.Wait(ctx, newDedupeRequest(t, http.MethodGet, nil))
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != ErrCancelled {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
}

func TestDedupEntryWaiters(t *testing.T) {
	tracker := NewDedupTracker()

	entry, _ := tracker.GetOrCreateEntry("counted")
	tracker.GetOrCreateEntry("counted")
	tracker.GetOrCreateEntry("counted")

	if got := entry.Waiters(); got != 3 {
		t.Errorf("Expected 3 waiters (owner included), got %d", got)
	}
}

func TestDedupTrackerEntryLingers(t *testing.T) {
	tracker := NewDedupTracker()

	key := "lingering"
	tracker.GetOrCreateEntry(key)
	tracker.Complete(key, NewResult(200, nil, []byte("done")), nil)

	// Within the linger window a straggler still finds the completed entry.
	entry, isOwner := tracker.GetOrCreateEntry(key)
	if isOwner {
		t.Error("Straggler inside the linger window should not become owner")
	}
	res, err := entry.Wait(context.Background(), newDedupeRequest(t, http.MethodGet, nil))
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if res.StatusCode() != 200 {
		t.Errorf("Expected status 200, got %d", res.StatusCode())
	}

	// Once the window passes the key starts a fresh flight.
	time.Sleep(150 * time.Millisecond)
	_, isOwner = tracker.GetOrCreateEntry(key)
	if !isOwner {
		t.Error("Call after the linger window should become owner")
	}
}

func TestDedupTrackerCompleteUnknownKey(t *testing.T) {
	tracker := NewDedupTracker()

	// Completing a key with no entry must be a no-op.
	tracker.Complete("absent", NewResult(200, nil, nil), nil)
}

func TestDefaultDedupKeyFunc(t *testing.T) {
	req1 := newDedupeRequest(t, http.MethodGet, nil)
	req2 := newDedupeRequest(t, http.MethodGet, nil)
	req3 := newDedupeRequest(t, http.MethodPost, nil)

	key1 := DefaultDedupKeyFunc(req1)
	key2 := DefaultDedupKeyFunc(req2)
	key3 := DefaultDedupKeyFunc(req3)

	// Same method and URL should have same key
	if key1 != key2 {
		t.Errorf("Same requests should have same key: %s != %s", key1, key2)
	}

	// Different method should have different key
	if key1 == key3 {
		t.Errorf("Different methods should have different keys: %s == %s", key1, key3)
	}

	if key1 == "" {
		t.Error("Key should not be empty")
	}
}

func TestDefaultDedupKeyFuncWithBody(t *testing.T) {
	req1 := newDedupeRequest(t, http.MethodPost, "test body content")
	req2 := newDedupeRequest(t, http.MethodPost, "test body content")
	req3 := newDedupeRequest(t, http.MethodPost, "different body")

	key1 := DefaultDedupKeyFunc(req1)
	key2 := DefaultDedupKeyFunc(req2)
	key3 := DefaultDedupKeyFunc(req3)

	// Same body should have same key
	if key1 != key2 {
		t.Errorf("Same POST body should have same key: %s != %s", key1, key2)
	}

	// Different body should have different key
	if key1 == key3 {
		t.Errorf("Different POST body should have different keys: %s == %s", key1, key3)
	}
}

func TestDefaultDedupKeyFuncIgnoresBodyForSafeMethods(t *testing.T) {
	req1 := newDedupeRequest(t, http.MethodGet, "one")
	req2 := newDedupeRequest(t, http.MethodGet, "two")

	// Only mutating verbs fold the body into the key.
	if DefaultDedupKeyFunc(req1) != DefaultDedupKeyFunc(req2) {
		t.Error("GET keys should not depend on the body")
	}
}

func TestDefaultDedupCondition(t *testing.T) {
	streamingGet := newDedupeRequest(t, http.MethodGet, nil)
	streamingGet.stream = true

	tests := []struct {
		name     string
		req      *Request
		expected bool
	}{
		{"GET", newDedupeRequest(t, http.MethodGet, nil), true},
		{"HEAD", newDedupeRequest(t, http.MethodHead, nil), true},
		{"OPTIONS", newDedupeRequest(t, http.MethodOptions, nil), true},
		{"POST", newDedupeRequest(t, http.MethodPost, nil), false},
		{"PUT", newDedupeRequest(t, http.MethodPut, nil), false},
		{"DELETE", newDedupeRequest(t, http.MethodDelete, nil), false},
		{"streaming GET", streamingGet, false},
	}

	for _, test := range tests {
		result := DefaultDedupCondition(test.req)
		if result != test.expected {
			t.Errorf("%s: expected %v, got %v", test.name, test.expected, result)
		}
	}
}

func BenchmarkDefaultDedupKeyFunc(b *testing.B) {
	req, err := NewRequest(http.MethodGet, "https://api.example.com/users/123?param=value", nil)
	if err != nil {
		b.Fatalf("NewRequest() error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = DefaultDedupKeyFunc(req)
	}
}

func BenchmarkDefaultDedupKeyFuncWithBody(b *testing.B) {
	req, err := NewRequest(http.MethodPost, "https://api.example.com/users", `{"name": "test", "value": 123}`)
	if err != nil {
		b.Fatalf("NewRequest() error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = DefaultDedupKeyFunc(req)
	}
}

func BenchmarkDedupTracker(b *testing.B) {
	tracker := NewDedupTracker()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i%1000)
		entry, _ := tracker.GetOrCreateEntry(key)
		_ = entry
	}
}
