package kurirgo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Response is the minimal capability the engine requires of a result value.
// Post-result hooks may substitute any implementation; the executor relies
// only on this interface for validation and never inspects concrete types.
type Response interface {
	StatusCode() int
	IsSuccess() bool
	Request() *Request
}

// Result is a handle to a response. It is either buffered (body fully in
// memory) or backed by a live, single-consumer byte stream. Body buffers the
// stream lazily into a single-assignment snapshot; Stream hands the live
// stream to at most one external consumer while teeing every chunk into the
// same snapshot, so the body stays readable after the consumer finishes.
type Result struct {
	request    *Request
	status     string
	statusCode int
	header     http.Header

	elapsed  time.Duration
	attempts int
	cached   bool
	live     bool

	mu       sync.Mutex
	raw      io.ReadCloser
	acc      []byte
	snapshot []byte
	buffered bool
	consumer bool
	readErr  error

	custom Response
}

func newBufferedResult(req *Request, statusCode int, status string, header http.Header, body []byte) *Result {
	if header == nil {
		header = make(http.Header)
	}
	return &Result{
		request:    req,
		status:     status,
		statusCode: statusCode,
		header:     header,
		snapshot:   body,
		buffered:   true,
	}
}

func newStreamResult(req *Request, resp *http.Response, body io.ReadCloser) *Result {
	header := resp.Header
	if header == nil {
		header = make(http.Header)
	}
	return &Result{
		request:    req,
		status:     resp.Status,
		statusCode: resp.StatusCode,
		header:     header,
		raw:        body,
		live:       true,
	}
}

// NewResult builds a buffered Result that is not tied to a transport
// exchange, for pre-request hooks that short-circuit the send with a
// ready-made response via Skip.
func NewResult(statusCode int, header http.Header, body []byte) *Result {
	status := fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	return newBufferedResult(nil, statusCode, status, header, body)
}

// StatusCode returns the HTTP status code.
func (r *Result) StatusCode() int { return r.statusCode }

// Status returns the HTTP status line, e.g. "200 OK".
func (r *Result) Status() string { return r.status }

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Result) IsSuccess() bool {
	return r.statusCode >= 200 && r.statusCode <= 299
}

// Request returns the originating request.
func (r *Result) Request() *Request { return r.request }

// Header returns the response headers. Callers must not modify the map.
func (r *Result) Header() http.Header { return r.header }

// Elapsed returns the total latency across all attempts.
func (r *Result) Elapsed() time.Duration { return r.elapsed }

// Attempts returns how many transport attempts produced this result. It is
// zero for results served from the cache or coalesced from another call.
func (r *Result) Attempts() int { return r.attempts }

// FromCache reports whether the result was served from the response cache.
func (r *Result) FromCache() bool { return r.cached }

// Custom returns the Response substituted by a post-result hook when that
// value is not the Result itself, or nil.
func (r *Result) Custom() Response { return r.custom }

func (r *Result) setCustom(resp Response) { r.custom = resp }

// Buffered reports whether the body snapshot is fully materialized.
func (r *Result) Buffered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffered
}

// Body returns the fully materialized body. The first call on a streaming
// Result drains the stream into the snapshot; every later call returns the
// identical bytes without touching the network. Body fails with
// ErrStreamConsumed once the stream has been handed to an external consumer
// that has not finished reading it.
func (r *Result) Body() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buffered {
		return r.snapshot, r.readErr
	}
	if r.consumer {
		return nil, ErrStreamConsumed
	}
	if r.raw == nil {
		r.buffered = true
		return r.snapshot, nil
	}

	raw := r.raw
	r.raw = nil
	data, err := io.ReadAll(raw)
	_ = raw.Close()

	r.snapshot = data
	r.buffered = true
	r.readErr = err
	return r.snapshot, r.readErr
}

// Text returns the body as a string.
func (r *Result) Text() (string, error) {
	b, err := r.Body()
	return string(b), err
}

// JSON decodes the body into v.
func (r *Result) JSON(v any) error {
	b, err := r.Body()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("kurirgo: decoding response body: %w", err)
	}
	return nil
}

// Stream returns the live body for at most one external consumer. Chunks read
// through it are teed into the snapshot, so Body works once the consumer hits
// EOF. Stream fails with ErrStreamConsumed when a consumer already exists or
// when buffering of a live stream has already begun. On a buffered Result it
// returns a one-shot reader over the snapshot.
func (r *Result) Stream() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumer {
		return nil, ErrStreamConsumed
	}
	if r.live && r.buffered {
		return nil, ErrStreamConsumed
	}
	r.consumer = true

	if r.raw == nil {
		return io.NopCloser(bytes.NewReader(r.snapshot)), nil
	}

	tee := &teeStream{res: r, src: r.raw}
	r.raw = nil
	return tee, nil
}

// Snapshot converts the Result into a fully buffered, transport-agnostic copy
// that is safe to share across goroutines or worker boundaries. It drives
// buffering of a live stream and fails if the stream is owned by an external
// consumer that has not finished.
func (r *Result) Snapshot() (*Result, error) {
	if _, err := r.Body(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{
		request:    r.request,
		status:     r.status,
		statusCode: r.statusCode,
		header:     r.header.Clone(),
		elapsed:    r.elapsed,
		attempts:   r.attempts,
		cached:     r.cached,
		snapshot:   r.snapshot,
		buffered:   true,
	}, nil
}

// copyFor builds an independent Result over the same snapshot bytes,
// attributed to req. Snapshot bytes are immutable, so sharing them between
// callers is safe.
func (r *Result) copyFor(req *Request, fromCache bool) *Result {
	return &Result{
		request:    req,
		status:     r.status,
		statusCode: r.statusCode,
		header:     r.header.Clone(),
		snapshot:   r.snapshot,
		buffered:   true,
		cached:     fromCache,
	}
}

// cachedCopy builds the Result handed out for a cache hit.
func (r *Result) cachedCopy(req *Request) *Result {
	return r.copyFor(req, true)
}

// discard releases an unconsumed live stream without buffering it, freeing
// the connection before a retry replaces this result.
func (r *Result) discard() {
	r.mu.Lock()
	raw := r.raw
	r.raw = nil
	r.mu.Unlock()
	if raw != nil {
		_ = raw.Close()
	}
}

// transformStream rewraps the live stream, used to apply pipeline stream
// hooks before any consumer attaches. No-op once consumption has begun.
func (r *Result) transformStream(fn func(io.ReadCloser) io.ReadCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raw == nil || r.consumer || r.buffered {
		return
	}
	if wrapped := fn(r.raw); wrapped != nil {
		r.raw = wrapped
	}
}

// teeStream reads from the live stream on behalf of the external consumer,
// accumulating every chunk so the snapshot seals at EOF. Closing before EOF
// abandons the snapshot: the body was only partially observed.
type teeStream struct {
	res    *Result
	src    io.ReadCloser
	mu     sync.Mutex
	closed bool
}

func (t *teeStream) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	t.mu.Unlock()

	n, err := t.src.Read(p)
	if n > 0 {
		t.res.mu.Lock()
		t.res.acc = append(t.res.acc, p[:n]...)
		t.res.mu.Unlock()
	}
	if err == io.EOF {
		t.res.sealStream()
	}
	return n, err
}

func (t *teeStream) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.src.Close()
}

func (r *Result) sealStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buffered {
		return
	}
	r.snapshot = r.acc
	r.acc = nil
	r.buffered = true
}
