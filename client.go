package kurirgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ambiyansyah-risyal/kurirgo/internal/backoff"
)

// New constructs a Client from the provided functional options. The
// configuration is validated once; an invalid client fails every call with
// the validation error, also available via ValidationError.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:       &http.Client{},
		timeout:          30 * time.Second,
		maxRetries:       3,
		retryDelay:       100 * time.Millisecond,
		maxRetryDelay:    10 * time.Second,
		backoffFactor:    2.0,
		jitter:           0,
		backoffStrategy:  ExponentialJitter,
		backoff:          backoff.GetExponentialJitterCalculator(),
		retryCondition:   DefaultRetryCondition,
		debounceInterval: 0,
		throttleInterval: 0,
		debouncer:        NewDebouncer(),
		throttler:        NewThrottler(),
		cache:            nil,
		cacheTTL:         0,
		cacheKeyFn:       keyFuncFor(CacheKeyFullURL),
		cacheCondition:   DefaultCacheCondition,
		canCache:         DefaultCanCache,
		circuitBreaker:   nil,
		dedup:            nil,
		dedupKeyFunc:     DefaultDedupKeyFunc,
		dedupCondition:   DefaultDedupCondition,
		pipelines:        []Pipeline{},
		errorIf:          DefaultErrorCondition,
		runner:           syncRunner{},
		metrics:          nil,
		debug:            DefaultDebugConfig(),
		logger:           nil,
	}
	client.transport = newHTTPTransport(client.httpClient)

	for _, option := range options {
		option(client)
	}

	if client.cache != nil {
		client.cachePipe = &cachePipeline{c: client}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Get performs a GET against endpoint, resolved relative to the base URL.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodGet, endpoint, nil, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Head performs a HEAD against endpoint.
func (c *Client) Head(ctx context.Context, endpoint string, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodHead, endpoint, nil, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post performs a POST with the given body. See NewRequest for accepted
// body types.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodPost, endpoint, body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Put performs a PUT with the given body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodPut, endpoint, body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Delete performs a DELETE; body may be nil.
func (c *Client) Delete(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodDelete, endpoint, body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Patch performs a PATCH with the given body.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodPatch, endpoint, body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// GetStream performs a GET whose Result exposes the live body via Stream
// instead of buffering it. Streaming calls run on the calling goroutine and
// are bounded by cancellation rather than the per-attempt timeout.
func (c *Client) GetStream(ctx context.Context, endpoint string, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodGet, endpoint, nil, opts...)
	if err != nil {
		return nil, err
	}
	req.stream = true
	return c.Do(ctx, req)
}

// PostStream performs a POST whose Result exposes the live body via Stream.
func (c *Client) PostStream(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Result, error) {
	req, err := c.newRequest(http.MethodPost, endpoint, body, opts...)
	if err != nil {
		return nil, err
	}
	req.stream = true
	return c.Do(ctx, req)
}

// GetJSON performs a GET and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, endpoint string, v any, opts ...RequestOption) error {
	res, err := c.Get(ctx, endpoint, opts...)
	if err != nil {
		return err
	}
	return res.JSON(v)
}

// PostJSON marshals body as JSON, performs a POST, and decodes the response
// into v unless v is nil.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body, v any, opts ...RequestOption) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kurirgo: encoding request body: %w", err)
	}
	opts = append([]RequestOption{WithHeader("Content-Type", "application/json")}, opts...)
	res, err := c.Post(ctx, endpoint, data, opts...)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return res.JSON(v)
}

// DoStream executes req with a stream-accessible Result, leaving req itself
// untouched.
func (c *Client) DoStream(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, &Error{Kind: KindValidation, Message: "nil request"}
	}
	streamReq := req.clone()
	streamReq.stream = true
	return c.Do(ctx, streamReq)
}

// newRequest resolves endpoint against the base URL and builds the Request.
func (c *Client) newRequest(method, endpoint string, body any, opts ...RequestOption) (*Request, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("kurirgo: invalid endpoint %q: %w", endpoint, err)
	}
	u := ref
	if c.baseURL != nil {
		u = c.baseURL.ResolveReference(ref)
	}
	return NewRequest(method, u.String(), body, opts...)
}

// Do executes req through the full pipeline: admission (debounce, dedup,
// throttle), the retry loop with pre-request, stream and post-result hooks
// inside it, then error hooks and the global error handler on failure.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if req == nil {
		return nil, &Error{Kind: KindValidation, Message: "nil request", Timestamp: time.Now()}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	method := req.Method()
	endpoint := req.endpoint()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if req.err != nil {
		e := c.newError(KindValidation, "invalid request", req.err, req, nil, requestID, 0, start)
		return nil, c.finishError(ctx, req, e, method, endpoint)
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", method, "url", req.URL().String(), "endpoint", endpoint)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(method, endpoint)
	}

	res, err := c.run(ctx, req, requestID, start)

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(method, endpoint)

		statusCode := 0
		if res != nil {
			statusCode = res.StatusCode()
		}
		c.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))
	}

	if err != nil {
		e := c.wrapError(err, req, requestID, start)
		return nil, c.finishError(ctx, req, e, method, endpoint)
	}

	return res, nil
}

// run applies call admission and hands the admitted call to the runner.
func (c *Client) run(ctx context.Context, req *Request, requestID string, start time.Time) (*Result, error) {
	method := req.Method()
	endpoint := req.endpoint()
	key := req.coordinationKey()
	token := req.CancelToken()

	// Debounce: the newest call for a key wins the quiet period, earlier
	// pending calls fail with ErrDebounced.
	if c.debounceInterval > 0 {
		if err := c.debouncer.Wait(ctx, key, c.debounceInterval, token); err != nil {
			if errors.Is(err, ErrDebounced) {
				if c.metrics != nil {
					c.metrics.RecordDebounced(method, endpoint)
				}
				if c.debug != nil && c.debug.Enabled && c.debug.LogDebounce && c.logger != nil {
					c.logger.Debug("Call superseded by newer call", "requestID", requestID, "key", key)
				}
				return nil, c.newError(KindDebounced, "superseded by newer call", ErrDebounced, req, nil, requestID, 0, start)
			}
			return nil, c.newError(KindCancelled, "cancelled while debouncing", ErrCancelled, req, nil, requestID, 0, start)
		}
	}

	// Coalesce concurrent identical calls onto one execution. Streaming
	// calls never coalesce: a live body cannot be shared.
	dedupEnabled := c.dedup != nil && !req.Streaming() && c.dedupCondition(req)
	var dedupEntry *DedupEntry
	var dedupKey string
	var owner bool
	if dedupEnabled {
		dedupKey = c.dedupKeyFunc(req)
		dedupEntry, owner = c.dedup.GetOrCreateEntry(dedupKey)

		if !owner {
			if c.metrics != nil {
				c.metrics.RecordDedupHit(method, endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.logger != nil {
				c.logger.Debug("Coalesced onto in-flight call", "requestID", requestID, "dedupKey", dedupKey)
			}
			return dedupEntry.Wait(ctx, req)
		}

		if c.debug != nil && c.debug.Enabled && c.logger != nil {
			c.logger.Debug("Owning in-flight call", "requestID", requestID, "dedupKey", dedupKey, "waiters", dedupEntry.Waiters())
		}
	}

	res, err := c.execute(ctx, req, requestID, start)

	if dedupEnabled && owner {
		if err != nil {
			c.dedup.Complete(dedupKey, nil, err)
		} else if snap, serr := res.Snapshot(); serr == nil {
			c.dedup.Complete(dedupKey, snap, nil)
		} else {
			c.dedup.Complete(dedupKey, nil, serr)
		}
	}

	return res, err
}

// execute applies the throttle gate and runs the retry loop, offloading
// buffered calls to the runner. Streaming calls stay on the calling
// goroutine so the live body is handed directly to the consumer.
func (c *Client) execute(ctx context.Context, req *Request, requestID string, start time.Time) (*Result, error) {
	method := req.Method()
	endpoint := req.endpoint()

	if c.throttleInterval > 0 && !c.throttler.Allow(req.coordinationKey(), c.throttleInterval) {
		if c.metrics != nil {
			c.metrics.RecordThrottled(method, endpoint)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogThrottle && c.logger != nil {
			c.logger.Warn("Call rejected by cooldown", "requestID", requestID, "key", req.coordinationKey())
		}
		return nil, c.newError(KindThrottled, "rejected by throttle cooldown", ErrThrottled, req, nil, requestID, 0, start)
	}

	if req.Streaming() {
		return c.doWithRetry(ctx, req, 1, requestID, start)
	}

	return c.runner.Run(ctx, func() (*Result, error) {
		return c.doWithRetry(ctx, req, 1, requestID, start)
	})
}

// doWithRetry performs attempt number attempt (1-based) and recurses for
// each scheduled retry.
func (c *Client) doWithRetry(ctx context.Context, req *Request, attempt int, requestID string, start time.Time) (*Result, error) {
	method := req.Method()
	endpoint := req.endpoint()

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint, "state", c.circuitBreaker.State().String())
		}
		return nil, c.newError(KindCircuitOpen, "circuit breaker is open", ErrCircuitOpen, req, nil, requestID, attempt-1, start)
	}

	if attempt > 1 {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", c.maxRetries, "endpoint", endpoint)
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(method, endpoint, attempt-1)
		}
	}

	res, err := c.attempt(ctx, req, requestID, attempt, start)

	if c.circuitBreaker != nil {
		if err != nil || (res != nil && res.StatusCode() >= 500) {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
		if c.metrics != nil {
			c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
		}
	}

	if err == nil {
		return res, nil
	}

	if !c.shouldRetry(req, err, attempt, requestID) {
		return nil, err
	}

	delay := c.retryWait(err, attempt)

	if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
		c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
	}

	// Release the failed attempt's body before replacing it.
	var e *Error
	if errors.As(err, &e) && e.Result != nil {
		e.Result.discard()
	}

	if werr := c.waitRetry(ctx, req.CancelToken(), delay); werr != nil {
		return nil, c.newError(KindCancelled, "cancelled during retry wait", ErrCancelled, req, nil, requestID, attempt, start)
	}

	return c.doWithRetry(ctx, req, attempt+1, requestID, start)
}

// shouldRetry applies the attempt budget, the never-retry kinds, the
// configured condition, and the body replayability guard, in that order.
func (c *Client) shouldRetry(req *Request, err error, attempt int, requestID string) bool {
	if attempt > c.maxRetries {
		return false
	}
	if neverRetry(KindOf(err)) {
		return false
	}
	if c.retryCondition == nil || !c.retryCondition(err, attempt) {
		return false
	}
	if !req.replayable() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Warn("Retry suppressed: request body is not replayable", "requestID", requestID, "endpoint", req.endpoint())
		}
		return false
	}
	return true
}

// waitRetry sleeps for delay unless the context or token fires first.
func (c *Client) waitRetry(ctx context.Context, token *CancelToken, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	case <-token.Done():
		return ErrCancelled
	}
}

// attempt runs one pass of the hook phases around a single transport send.
func (c *Client) attempt(ctx context.Context, req *Request, requestID string, attempt int, start time.Time) (*Result, error) {
	pipelines := c.pipelinesFor(req)

	// Request phase: registration order; a Skip verdict short-circuits the
	// remaining request hooks and the send, but not the result phase.
	cur := req
	for _, p := range pipelines {
		verdict, err := p.OnRequest(ctx, cur)
		if err != nil {
			return nil, c.pipelineError(err, "request pipeline failed", cur, nil, requestID, attempt, start)
		}
		if verdict.Skipped() {
			skipRes := verdict.Result()
			if skipRes.elapsed == 0 {
				skipRes.elapsed = time.Since(start)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogPipelines && c.logger != nil {
				c.logger.Debug("Send skipped by pipeline", "requestID", requestID, "endpoint", cur.endpoint())
			}
			return c.resultPhase(ctx, pipelines, skipRes, cur, requestID, attempt, start)
		}
		if next := verdict.Request(); next != nil {
			cur = next
		}
	}

	res, err := c.send(ctx, cur, requestID, attempt, start)
	if err != nil {
		return nil, err
	}

	return c.resultPhase(ctx, pipelines, res, cur, requestID, attempt, start)
}

// resultPhase applies stream wrapping, the result hooks, and the error
// condition to a concrete result.
func (c *Client) resultPhase(ctx context.Context, pipelines []Pipeline, res *Result, req *Request, requestID string, attempt int, start time.Time) (*Result, error) {
	// Stream phase: wrap the live body in registration order before any
	// consumer can attach.
	if res.live {
		for _, p := range pipelines {
			hook := p
			res.transformStream(func(body io.ReadCloser) io.ReadCloser {
				return hook.OnStream(ctx, res, body)
			})
		}
	}

	// Result phase: registration order, same as the request phase; each
	// hook may substitute any Response implementation.
	var out Response = res
	for _, p := range pipelines {
		next, err := p.OnResult(ctx, out)
		if err != nil {
			return nil, c.pipelineError(err, "result pipeline failed", req, res, requestID, attempt, start)
		}
		if next != nil {
			out = next
		}
	}

	if c.errorIf != nil && c.errorIf(out) {
		e := c.newError(KindHTTP, fmt.Sprintf("request failed with status %d", out.StatusCode()), nil, req, res, requestID, attempt, start)
		e.StatusCode = out.StatusCode()
		return nil, e
	}

	final, ok := out.(*Result)
	if !ok {
		final = res
		final.setCustom(out)
	}
	return final, nil
}

// send performs one transport attempt. Buffered calls drain the body here
// so mid-body failures stay retryable; streaming calls return with the live
// body wrapped in the cancellation checkpoints.
func (c *Client) send(ctx context.Context, req *Request, requestID string, attempt int, start time.Time) (*Result, error) {
	token := req.CancelToken()

	// Per-attempt context: the timeout bounds buffered attempts end to
	// end; streams stay open until EOF or cancellation.
	var attemptCtx context.Context
	var cancelAttempt context.CancelFunc
	if !req.Streaming() && c.timeout > 0 {
		attemptCtx, cancelAttempt = context.WithTimeout(ctx, c.timeout)
	} else {
		attemptCtx, cancelAttempt = context.WithCancel(ctx)
	}
	bridged, stopBridge := token.Context(attemptCtx)
	release := func() {
		stopBridge()
		cancelAttempt()
	}

	resp, err := c.transport.Do(bridged, req)
	if err != nil {
		release()
		return nil, c.sendError(err, req, token, requestID, attempt, start)
	}

	body := newCancelBody(resp.Body, token, release)

	if req.Streaming() {
		res := newStreamResult(req, resp, body)
		res.elapsed = time.Since(start)
		res.attempts = attempt
		return res, nil
	}

	data, readErr := io.ReadAll(body)
	_ = body.Close()
	if readErr != nil {
		if token.Cancelled() {
			return nil, c.newError(KindCancelled, "cancelled while reading response body", ErrCancelled, req, nil, requestID, attempt, start)
		}
		return nil, c.newError(KindNetwork, "reading response body failed", readErr, req, nil, requestID, attempt, start)
	}

	res := newBufferedResult(req, resp.StatusCode, resp.Status, resp.Header, data)
	res.elapsed = time.Since(start)
	res.attempts = attempt
	return res, nil
}

// sendError classifies a transport failure into the error taxonomy.
func (c *Client) sendError(err error, req *Request, token *CancelToken, requestID string, attempt int, start time.Time) *Error {
	switch {
	case errors.Is(err, ErrCancelled) || token.Cancelled() || errors.Is(err, context.Canceled):
		return c.newError(KindCancelled, "request cancelled", ErrCancelled, req, nil, requestID, attempt, start)
	case errors.Is(err, ErrBodyNotReplayable):
		return c.newError(KindValidation, "request body cannot be replayed", err, req, nil, requestID, attempt, start)
	case errors.Is(err, context.DeadlineExceeded):
		return c.newError(KindNetwork, "request timed out", err, req, nil, requestID, attempt, start)
	default:
		return c.newError(KindNetwork, "network request failed", err, req, nil, requestID, attempt, start)
	}
}

// pipelineError wraps a hook failure, passing through an *Error the hook
// already built.
func (c *Client) pipelineError(err error, message string, req *Request, res *Result, requestID string, attempt int, start time.Time) *Error {
	var e *Error
	if errors.As(err, &e) {
		c.enrichError(e, req, requestID, attempt, start)
		return e
	}
	return c.newError(KindCustom, message, err, req, res, requestID, attempt, start)
}

// pipelinesFor assembles the effective chain: the built-in cache pipeline,
// the client chain, then per-call pipelines.
func (c *Client) pipelinesFor(req *Request) []Pipeline {
	chain := make([]Pipeline, 0, len(c.pipelines)+len(req.pipelines)+1)
	if c.cachePipe != nil {
		chain = append(chain, c.cachePipe)
	}
	chain = append(chain, c.pipelines...)
	chain = append(chain, req.pipelines...)
	return chain
}

// newError builds an *Error with full call context attached.
func (c *Client) newError(kind Kind, message string, cause error, req *Request, res *Result, requestID string, attempt int, start time.Time) *Error {
	statusCode := 0
	if res != nil {
		statusCode = res.StatusCode()
	}
	endpoint := ""
	if req != nil {
		endpoint = req.endpoint()
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		Request:    req,
		Result:     res,
		StatusCode: statusCode,
		Attempts:   attempt,
		MaxRetries: c.maxRetries,
		Elapsed:    time.Since(start),
		Timestamp:  time.Now(),
		RequestID:  requestID,
		Endpoint:   endpoint,
	}
}

// wrapError normalizes any failure into an *Error carrying the request.
func (c *Client) wrapError(err error, req *Request, requestID string, start time.Time) *Error {
	var e *Error
	if errors.As(err, &e) {
		c.enrichError(e, req, requestID, 0, start)
		return e
	}

	kind := KindCustom
	message := "request failed"
	switch {
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		kind, message = KindCancelled, "request cancelled"
	case errors.Is(err, ErrDebounced):
		kind, message = KindDebounced, "superseded by newer call"
	case errors.Is(err, ErrThrottled):
		kind, message = KindThrottled, "rejected by throttle cooldown"
	case errors.Is(err, ErrCircuitOpen):
		kind, message = KindCircuitOpen, "circuit breaker is open"
	case errors.Is(err, context.DeadlineExceeded):
		kind, message = KindNetwork, "request timed out"
	}
	return c.newError(kind, message, err, req, nil, requestID, 0, start)
}

// enrichError fills call context missing from a pre-built *Error.
func (c *Client) enrichError(e *Error, req *Request, requestID string, attempt int, start time.Time) {
	if e.Request == nil {
		e.Request = req
	}
	if e.RequestID == "" {
		e.RequestID = requestID
	}
	if e.Endpoint == "" && e.Request != nil {
		e.Endpoint = e.Request.endpoint()
	}
	if e.Attempts == 0 {
		e.Attempts = attempt
	}
	if e.Elapsed == 0 {
		e.Elapsed = time.Since(start)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}

// finishError runs the error hooks in registration order, then the global
// error handler, and records the failure. Hook panics are contained so a
// faulty observer cannot suppress the error or the hooks after it.
func (c *Client) finishError(ctx context.Context, req *Request, e *Error, method, endpoint string) *Error {
	for _, p := range c.pipelinesFor(req) {
		c.fireErrorHook(ctx, p, e)
	}

	if c.onError != nil {
		c.onError(e)
	}

	if c.metrics != nil {
		c.metrics.RecordError(string(e.Kind), method, endpoint)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogErrors && c.logger != nil {
		c.logger.Error("Request failed", "requestID", e.RequestID, "kind", string(e.Kind), "endpoint", endpoint, "error", e.Error())
	}

	return e
}

func (c *Client) fireErrorHook(ctx context.Context, p Pipeline, e *Error) {
	defer func() {
		if r := recover(); r != nil {
			if c.debug != nil && c.debug.Enabled && c.debug.LogErrors && c.logger != nil {
				c.logger.Error("Error hook panicked", "requestID", e.RequestID, "panic", fmt.Sprintf("%v", r))
			}
		}
	}()
	p.OnError(ctx, e)
}
