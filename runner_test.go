package kurirgo

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSyncRunnerExecutesInline(t *testing.T) {
	want := NewResult(200, nil, []byte("inline"))

	got, err := syncRunner{}.Run(context.Background(), func() (*Result, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// The inline runner hands the task's result straight back.
	if got != want {
		t.Error("Expected the task's Result unchanged, got a different value")
	}
}

func TestSyncRunnerPropagatesError(t *testing.T) {
	wantErr := fmt.Errorf("task failed")

	res, err := syncRunner{}.Run(context.Background(), func() (*Result, error) {
		return nil, wantErr
	})
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != wantErr {
		t.Errorf("Expected task error, got %v", err)
	}
}

func TestPoolRunnerExecutesTask(t *testing.T) {
	pool := NewPoolRunner(2, 4)
	defer pool.Close()

	header := http.Header{"X-Worker": []string{"yes"}}
	original := NewResult(201, header, []byte("pooled"))

	got, err := pool.Run(context.Background(), func() (*Result, error) {
		return original, nil
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Workers hand back a snapshot, never the task's own Result.
	if got == original {
		t.Error("Expected a snapshot across the worker boundary, got the original Result")
	}
	if !got.Buffered() {
		t.Error("Expected a buffered result from the pool")
	}
	if got.StatusCode() != 201 {
		t.Errorf("Expected status 201, got %d", got.StatusCode())
	}
	body, err := got.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	if string(body) != "pooled" {
		t.Errorf("Expected body %q, got %q", "pooled", string(body))
	}
	if got.Header().Get("X-Worker") != "yes" {
		t.Error("Expected headers to survive the snapshot")
	}
}

func TestPoolRunnerSnapshotsStream(t *testing.T) {
	pool := NewPoolRunner(1, 0)
	defer pool.Close()

	got, err := pool.Run(context.Background(), func() (*Result, error) {
		return newTestStreamResult(t, "streamed body"), nil
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if !got.Buffered() {
		t.Error("Expected the worker to buffer a live stream before handing it back")
	}
	body, err := got.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	if string(body) != "streamed body" {
		t.Errorf("Expected body %q, got %q", "streamed body", string(body))
	}
}

func TestPoolRunnerPropagatesError(t *testing.T) {
	pool := NewPoolRunner(1, 0)
	defer pool.Close()

	wantErr := fmt.Errorf("worker task failed")

	res, err := pool.Run(context.Background(), func() (*Result, error) {
		return nil, wantErr
	})
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != wantErr {
		t.Errorf("Expected task error, got %v", err)
	}
}

func TestPoolRunnerClosed(t *testing.T) {
	pool := NewPoolRunner(1, 0)
	pool.Close()

	res, err := pool.Run(context.Background(), func() (*Result, error) {
		return NewResult(200, nil, nil), nil
	})
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != ErrRunnerClosed {
		t.Errorf("Expected ErrRunnerClosed, got %v", err)
	}
}

func TestPoolRunnerCloseIdempotent(t *testing.T) {
	pool := NewPoolRunner(2, 2)
	pool.Close()
	pool.Close()
}

func TestPoolRunnerCancelledContext(t *testing.T) {
	pool := NewPoolRunner(1, 1)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := pool.Run(ctx, func() (*Result, error) {
		return NewResult(200, nil, nil), nil
	})
	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != ErrCancelled {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
}

func TestPoolRunnerCancelDuringTask(t *testing.T) {
	pool := NewPoolRunner(1, 0)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := pool.Run(ctx, func() (*Result, error) {
		time.Sleep(200 * time.Millisecond)
		return NewResult(200, nil, nil), nil
	})
	elapsed := time.Since(start)

	if res != nil {
		t.Errorf("Expected nil result, got %v", res)
	}
	if err != ErrCancelled {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
	// The caller is released immediately; the task finishes in the background.
	if elapsed > 150*time.Millisecond {
		t.Errorf("Cancellation should not wait for the task, took %v", elapsed)
	}
}

func TestPoolRunnerQueueBackpressure(t *testing.T) {
	pool := NewPoolRunner(1, 0)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Run(context.Background(), func() (*Result, error) {
			close(started)
			<-release
			return NewResult(200, nil, nil), nil
		})
	}()

	<-started

	// The only worker is busy and the queue has no room, so a submission
	// deadline fires before the task is ever accepted.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := pool.Run(ctx, func() (*Result, error) {
		return NewResult(200, nil, nil), nil
	})
	if err != ErrCancelled {
		t.Errorf("Expected ErrCancelled while the queue is full, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestPoolRunnerCloseReleasesQueuedCaller(t *testing.T) {
	pool := NewPoolRunner(1, 0)

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Run(context.Background(), func() (*Result, error) {
			close(started)
			<-release
			return NewResult(200, nil, nil), nil
		})
	}()

	<-started

	// The only worker is busy and the queue has no room, so this caller
	// blocks waiting to enqueue.
	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Run(context.Background(), func() (*Result, error) {
			return NewResult(200, nil, nil), nil
		})
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	// Close must fail the blocked caller instead of waiting behind it for
	// queue space.
	select {
	case err := <-errCh:
		if err != ErrRunnerClosed {
			t.Fatalf("Expected ErrRunnerClosed for the queued caller, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Queued caller still blocked after Close")
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the running task finished")
	}
	wg.Wait()
}

func TestPoolRunnerConcurrentTasks(t *testing.T) {
	pool := NewPoolRunner(4, 8)
	defer pool.Close()

	var executed int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := pool.Run(context.Background(), func() (*Result, error) {
				atomic.AddInt32(&executed, 1)
				return NewResult(200, nil, []byte("ok")), nil
			})
			if err != nil {
				t.Errorf("Run() error: %v", err)
				return
			}
			if res.StatusCode() != 200 {
				t.Errorf("Expected status 200, got %d", res.StatusCode())
			}
		}()
	}

	wg.Wait()

	if got := atomic.LoadInt32(&executed); got != 16 {
		t.Errorf("Expected 16 executed tasks, got %d", got)
	}
}
