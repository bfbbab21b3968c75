// Package kurirgo provides an HTTP request-execution engine with composable
// reliability and coordination primitives:
//
//   - Retries with exponential backoff + jitter, bounded per call by WithMaxRetries
//   - Per-key debouncing (newest call wins) and throttling (cooldown rejection)
//   - In-memory response caching with TTL and per-call context overrides
//   - Request de-duplication (merges concurrent identical in-flight calls)
//   - Pipeline hooks on request, result, stream and error phases
//   - Cooperative cancellation tokens checked at every transport checkpoint
//   - Buffered and streaming result shapes over a single Result type
//   - Circuit breaker (open / half-open / closed states)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied pipelines & pluggable cache / metrics / transport
//
// Typical usage:
//
//	client := kurirgo.New(
//	    kurirgo.WithMaxRetries(3),
//	    kurirgo.WithCache(5*time.Minute),
//	    kurirgo.WithDebounce(300*time.Millisecond),
//	    kurirgo.WithDedup(),
//	)
//	res, err := client.Get(ctx, "https://api.example.com/data")
//
// Only network failures and 5xx responses trigger retries by default; override
// with WithRetryCondition. Non-2xx responses become errors by default; override
// with WithErrorCondition. The library avoids opinionated logging: provide a
// Logger (e.g. via WithSimpleLogger) + enable debug flags selectively
// (WithDebug / WithDebugConfig) for insight without noise.
package kurirgo
