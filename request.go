package kurirgo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is an immutable description of one logical call. Pipelines replace
// a Request via With rather than mutating it; the engine owns the value for
// the lifetime of the call.
//
// The body is one of: nil, pre-buffered bytes (replayable across retries), or
// a one-shot io.Reader. A one-shot reader can only be sent once; supply
// WithGetBody to make it replayable.
type Request struct {
	method     string
	url        *url.URL
	header     http.Header
	body       []byte
	bodyReader io.Reader
	getBody    func() (io.ReadCloser, error)
	token      *CancelToken
	pipelines  []Pipeline
	stream     bool
	consumed   bool
	err        error
}

// RequestOption customizes a single Request at construction or derivation.
type RequestOption func(*Request)

// NewRequest builds a Request. Body accepts nil, string, []byte, url.Values
// (form-encoded, Content-Type set when absent), or io.Reader.
func NewRequest(method, rawURL string, body any, opts ...RequestOption) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kurirgo: invalid url %q: %w", rawURL, err)
	}

	r := &Request{
		method: strings.ToUpper(method),
		url:    u,
		header: make(http.Header),
	}
	if err := r.setBody(body); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r, nil
}

// With derives a new Request by cloning the receiver and applying opts.
func (r *Request) With(opts ...RequestOption) *Request {
	clone := r.clone()
	for _, opt := range opts {
		opt(clone)
	}
	return clone
}

// WithQuery sets a query string parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		q := r.url.Query()
		q.Set(key, value)
		r.url.RawQuery = q.Encode()
	}
}

// WithQueryValues sets every parameter present in values.
func WithQueryValues(values url.Values) RequestOption {
	return func(r *Request) {
		q := r.url.Query()
		for key, vs := range values {
			q.Del(key)
			for _, v := range vs {
				q.Add(key, v)
			}
		}
		r.url.RawQuery = q.Encode()
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

// WithCancelToken attaches a cancellation token to the request.
func WithCancelToken(token *CancelToken) RequestOption {
	return func(r *Request) {
		r.token = token
	}
}

// WithCallPipelines appends pipelines that run for this call only, after the
// client's own chain.
func WithCallPipelines(pipelines ...Pipeline) RequestOption {
	return func(r *Request) {
		r.pipelines = append(r.pipelines, pipelines...)
	}
}

// WithBody replaces the request body, with the same coercion as NewRequest.
func WithBody(body any) RequestOption {
	return func(r *Request) {
		if err := r.setBody(body); err != nil {
			r.err = err
		}
	}
}

// WithGetBody supplies a factory that recreates a reader-backed body, making
// the request replayable across retry attempts.
func WithGetBody(fn func() (io.ReadCloser, error)) RequestOption {
	return func(r *Request) {
		r.getBody = fn
	}
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns a copy of the resolved request URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Header returns a copy of the request headers.
func (r *Request) Header() http.Header {
	return r.header.Clone()
}

// BodyBytes returns the buffered body, or nil when the body is empty or
// reader-backed. Callers must not modify the returned slice.
func (r *Request) BodyBytes() []byte { return r.body }

// HasStreamBody reports whether the body is backed by a one-shot reader.
func (r *Request) HasStreamBody() bool { return r.bodyReader != nil }

// CancelToken returns the attached token, or nil.
func (r *Request) CancelToken() *CancelToken { return r.token }

// Streaming reports whether the caller asked for a stream-accessible Result.
func (r *Request) Streaming() bool { return r.stream }

func (r *Request) setBody(body any) error {
	r.body, r.bodyReader, r.getBody = nil, nil, nil

	switch b := body.(type) {
	case nil:
	case string:
		r.body = []byte(b)
	case []byte:
		r.body = b
	case url.Values:
		r.body = []byte(b.Encode())
		if r.header.Get("Content-Type") == "" {
			r.header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	case io.Reader:
		r.bodyReader = b
	default:
		return fmt.Errorf("kurirgo: unsupported body type %T", body)
	}
	return nil
}

// replayable reports whether the body can be sent again on a retry attempt.
func (r *Request) replayable() bool {
	return r.bodyReader == nil || r.getBody != nil
}

// httpRequest materializes the Request for one transport attempt. A one-shot
// reader body is marked consumed on first use; further attempts fail with
// ErrBodyNotReplayable unless a GetBody factory was supplied.
func (r *Request) httpRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	switch {
	case r.body != nil:
		body = bytes.NewReader(r.body)
	case r.bodyReader != nil:
		if r.consumed {
			if r.getBody == nil {
				return nil, ErrBodyNotReplayable
			}
			rc, err := r.getBody()
			if err != nil {
				return nil, err
			}
			body = rc
		} else {
			body = r.bodyReader
			r.consumed = true
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url.String(), body)
	if err != nil {
		return nil, err
	}
	for key, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(key, v)
		}
	}
	if r.bodyReader != nil && r.getBody != nil {
		req.GetBody = r.getBody
	}
	return req, nil
}

func (r *Request) clone() *Request {
	clone := *r
	clone.header = r.header.Clone()
	if clone.header == nil {
		clone.header = make(http.Header)
	}
	u := *r.url
	clone.url = &u
	clone.pipelines = append([]Pipeline(nil), r.pipelines...)
	return &clone
}

// endpoint renders host+path for metrics labels and debug logs.
func (r *Request) endpoint() string {
	if r.url == nil {
		return "unknown"
	}

	host := r.url.Host
	path := r.url.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}

// coordinationKey is the per-key identity used by the debounce and throttle
// coordinators: the effective URI after base-URL and query resolution.
func (r *Request) coordinationKey() string {
	if r.url == nil {
		return r.method
	}
	return r.url.String()
}
