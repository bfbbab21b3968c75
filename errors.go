package kurirgo

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an Error into the engine's failure taxonomy.
type Kind string

const (
	// KindCancelled marks a request stopped by its cancel token or context.
	KindCancelled Kind = "Cancelled"
	// KindDebounced marks a call superseded by a newer call for the same key.
	KindDebounced Kind = "Debounced"
	// KindThrottled marks a call rejected because its key is in cooldown.
	KindThrottled Kind = "Throttled"
	// KindNetwork marks transport, connection, or timeout failures.
	KindNetwork Kind = "Network"
	// KindHTTP marks a completed round trip whose status failed validation.
	KindHTTP Kind = "HTTP"
	// KindCustom marks an error raised by pipeline logic.
	KindCustom Kind = "Custom"
	// KindCircuitOpen marks a call rejected by an open circuit breaker.
	KindCircuitOpen Kind = "CircuitOpen"
	// KindValidation marks invalid client configuration.
	KindValidation Kind = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCancelled is the cause attached to cancellation failures.
	ErrCancelled = errors.New("kurirgo: cancelled")

	// ErrDebounced is the cause attached when a pending call is superseded.
	ErrDebounced = errors.New("kurirgo: debounced")

	// ErrThrottled is the cause attached when a call arrives inside a cooldown.
	ErrThrottled = errors.New("kurirgo: throttled")

	// ErrCircuitOpen is the cause attached when the circuit breaker is open.
	ErrCircuitOpen = errors.New("kurirgo: circuit open")

	// ErrStreamConsumed is returned when a Result's stream was already handed
	// out or its buffering has begun.
	ErrStreamConsumed = errors.New("kurirgo: stream already consumed")

	// ErrBodyNotReplayable is returned when a request body backed by a
	// one-shot reader would have to be read a second time.
	ErrBodyNotReplayable = errors.New("kurirgo: request body cannot be replayed")
)

// Error is the engine's error type. Every Error carries the originating
// Request; transport and validation failures also carry the partial Result
// and status code where available.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	Request    *Request
	Result     *Result
	StatusCode int
	Attempts   int
	MaxRetries int
	Elapsed    time.Duration
	Timestamp  time.Time
	RequestID  string
	Endpoint   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempts, e.MaxRetries+1)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// copyFor returns an independent shallow copy of e attributed to req. Calls
// that share one outcome each receive their own copy, so no two callers ever
// enrich or observe the same mutable value. The correlation ID is dropped;
// the receiving call fills in its own.
func (e *Error) copyFor(req *Request) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	if req != nil {
		clone.Request = req
		clone.Endpoint = req.endpoint()
	}
	clone.RequestID = ""
	return &clone
}

// KindOf extracts the Kind from any error produced by this package.
// It returns the empty Kind for nil or foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. True for network failures and 5xx/429 statuses,
// false for cancellation, debounce, throttle, and configuration errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNetwork:
			return true
		case KindHTTP:
			return e.StatusCode >= 500 || e.StatusCode == 429
		default:
			return false
		}
	}

	return false
}

// neverRetry reports kinds excluded from retry regardless of the configured
// retry condition.
func neverRetry(k Kind) bool {
	switch k {
	case KindCancelled, KindDebounced, KindThrottled, KindCircuitOpen, KindValidation:
		return true
	default:
		return false
	}
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Request != nil {
		info += fmt.Sprintf("Method: %s\n", e.Request.Method())
		info += fmt.Sprintf("URL: %s\n", e.Request.URL().String())
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempts > 0 {
		info += fmt.Sprintf("Attempts: %d/%d\n", e.Attempts, e.MaxRetries+1)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Elapsed > 0 {
		info += fmt.Sprintf("Elapsed: %v\n", e.Elapsed)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
