package kurirgo

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// Transport executes a single prepared attempt. Implementations must honor
// ctx and check the request's cancel token before sending and again once
// response headers arrive.
type Transport interface {
	Do(ctx context.Context, req *Request) (*http.Response, error)
}

// httpTransport is the default Transport backed by an *http.Client.
type httpTransport struct {
	hc *http.Client
}

func newHTTPTransport(hc *http.Client) *httpTransport {
	return &httpTransport{hc: hc}
}

func (t *httpTransport) Do(ctx context.Context, req *Request) (*http.Response, error) {
	token := req.CancelToken()

	// Checkpoint: before the attempt leaves the process.
	if token.Cancelled() {
		return nil, ErrCancelled
	}

	httpReq, err := req.httpRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}

	// Checkpoint: headers received, body not yet consumed.
	if token.Cancelled() {
		resp.Body.Close()
		return nil, ErrCancelled
	}

	return resp, nil
}

// cancelBody wraps an attempt's response body so that reads observe the
// cancel token (the third checkpoint, mid-body) and so the attempt's
// context is released exactly once when the body is exhausted, closed, or
// cancelled. Reads blocked in the kernel are unblocked by the attempt
// context, which the token cancels through its bridge.
type cancelBody struct {
	rc    io.ReadCloser
	token *CancelToken
	once  sync.Once
	done  func()
}

func newCancelBody(rc io.ReadCloser, token *CancelToken, done func()) *cancelBody {
	return &cancelBody{rc: rc, token: token, done: done}
}

func (b *cancelBody) Read(p []byte) (int, error) {
	if b.token.Cancelled() {
		b.finish()
		return 0, ErrCancelled
	}
	n, err := b.rc.Read(p)
	if err != nil {
		b.finish()
	}
	return n, err
}

func (b *cancelBody) Close() error {
	err := b.rc.Close()
	b.finish()
	return err
}

func (b *cancelBody) finish() {
	b.once.Do(func() {
		if b.done != nil {
			b.done()
		}
	})
}
