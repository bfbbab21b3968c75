package kurirgo

import (
	"context"
	"errors"
	"sync"
)

// ErrRunnerClosed is returned when work is submitted to a closed PoolRunner.
var ErrRunnerClosed = errors.New("kurirgo: runner closed")

// Runner executes one attempt sequence, optionally somewhere other than the
// calling goroutine. Results handed back across a goroutine boundary are
// buffered snapshots; live streaming results never cross a Runner.
type Runner interface {
	Run(ctx context.Context, task func() (*Result, error)) (*Result, error)
}

// syncRunner executes the task inline. It is the default.
type syncRunner struct{}

func (syncRunner) Run(ctx context.Context, task func() (*Result, error)) (*Result, error) {
	return task()
}

// PoolRunner executes tasks on a fixed pool of worker goroutines. Each
// worker snapshots its result before handing it back, so the caller only
// ever sees fully buffered responses.
type PoolRunner struct {
	tasks   chan poolTask
	closing chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type poolTask struct {
	ctx    context.Context
	fn     func() (*Result, error)
	result chan poolOutcome
}

type poolOutcome struct {
	res *Result
	err error
}

// NewPoolRunner starts workers goroutines consuming a queue of queueSize
// pending tasks. workers below 1 is treated as 1.
func NewPoolRunner(workers, queueSize int) *PoolRunner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &PoolRunner{
		tasks:   make(chan poolTask, queueSize),
		closing: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *PoolRunner) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if t.ctx.Err() != nil {
			t.result <- poolOutcome{nil, ErrCancelled}
			continue
		}
		res, err := t.fn()
		if res != nil && err == nil {
			snap, serr := res.Snapshot()
			if serr != nil {
				err = serr
				res = nil
			} else {
				res = snap
			}
		}
		t.result <- poolOutcome{res, err}
	}
}

// Run submits the task and waits for its snapshot. If ctx is done before a
// worker picks the task up or before it completes, Run returns ErrCancelled;
// an already-running task finishes in the background and its result is
// discarded.
func (p *PoolRunner) Run(ctx context.Context, task func() (*Result, error)) (*Result, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrRunnerClosed
	}
	t := poolTask{
		ctx:    ctx,
		fn:     task,
		result: make(chan poolOutcome, 1),
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-p.closing:
		p.mu.RUnlock()
		return nil, ErrRunnerClosed
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ErrCancelled
	}

	select {
	case out := <-t.result:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ErrCancelled
	}
}

// Close stops accepting tasks and waits for in-flight work to finish.
// Callers blocked waiting for queue space fail with ErrRunnerClosed rather
// than holding Close up behind a full queue.
func (p *PoolRunner) Close() {
	// Wake blocked enqueuers first: the write lock below cannot be taken
	// while a Run holds its read lock waiting for queue space.
	p.closeOnce.Do(func() { close(p.closing) })

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
