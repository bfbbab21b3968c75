package kurirgo

import (
	"context"
	"io"
)

// Pipeline is a middleware unit with four optional hooks. Hooks run in strict
// registration order in both the pre-request and post-result phases (the
// post-result phase is not reversed). Embed BasePipeline to implement only
// the hooks a pipeline cares about.
type Pipeline interface {
	// OnRequest may replace the outgoing request or skip the transport send
	// entirely by returning Skip with a pre-built Result. Returning an error
	// aborts the attempt with a Custom error.
	OnRequest(ctx context.Context, req *Request) (Verdict, error)

	// OnResult may transform or substitute the result. A substituted value
	// only needs to satisfy the Response capability.
	OnResult(ctx context.Context, res Response) (Response, error)

	// OnStream wraps the live body of a streaming call. Wrappers are applied
	// in registration order, each receiving the previous hook's output, and
	// must stay lazy: no reads until the consumer pulls.
	OnStream(ctx context.Context, res Response, body io.ReadCloser) io.ReadCloser

	// OnError observes a terminal error after retries are exhausted. It is
	// best-effort: a panic here does not suppress the error or later hooks.
	OnError(ctx context.Context, err *Error)
}

// Verdict is the outcome of a pre-request hook: either proceed with a
// (possibly replaced) request, or skip the send with a ready-made Result.
type Verdict struct {
	req *Request
	res *Result
}

// Proceed continues the chain with req.
func Proceed(req *Request) Verdict { return Verdict{req: req} }

// Skip short-circuits the chain and the transport send, supplying res as the
// attempt's result. Remaining pre-request hooks do not run; post-result hooks
// still do.
func Skip(res *Result) Verdict { return Verdict{res: res} }

// Skipped reports whether the verdict short-circuits the send.
func (v Verdict) Skipped() bool { return v.res != nil }

// Request returns the request to continue with, for a Proceed verdict.
func (v Verdict) Request() *Request { return v.req }

// Result returns the ready-made result, for a Skip verdict.
func (v Verdict) Result() *Result { return v.res }

// BasePipeline provides no-op implementations of every hook.
type BasePipeline struct{}

func (BasePipeline) OnRequest(_ context.Context, req *Request) (Verdict, error) {
	return Proceed(req), nil
}

func (BasePipeline) OnResult(_ context.Context, res Response) (Response, error) {
	return res, nil
}

func (BasePipeline) OnStream(_ context.Context, _ Response, body io.ReadCloser) io.ReadCloser {
	return body
}

func (BasePipeline) OnError(context.Context, *Error) {}

// PipelineFuncs adapts plain functions into a Pipeline. Nil fields behave as
// no-ops.
type PipelineFuncs struct {
	Request func(ctx context.Context, req *Request) (Verdict, error)
	Result  func(ctx context.Context, res Response) (Response, error)
	Stream  func(ctx context.Context, res Response, body io.ReadCloser) io.ReadCloser
	Error   func(ctx context.Context, err *Error)
}

func (p PipelineFuncs) OnRequest(ctx context.Context, req *Request) (Verdict, error) {
	if p.Request == nil {
		return Proceed(req), nil
	}
	return p.Request(ctx, req)
}

func (p PipelineFuncs) OnResult(ctx context.Context, res Response) (Response, error) {
	if p.Result == nil {
		return res, nil
	}
	return p.Result(ctx, res)
}

func (p PipelineFuncs) OnStream(ctx context.Context, res Response, body io.ReadCloser) io.ReadCloser {
	if p.Stream == nil {
		return body
	}
	return p.Stream(ctx, res, body)
}

func (p PipelineFuncs) OnError(ctx context.Context, err *Error) {
	if p.Error != nil {
		p.Error(ctx, err)
	}
}
