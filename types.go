package kurirgo

import (
	"net/http"
	"net/url"
	"time"

	"github.com/ambiyansyah-risyal/kurirgo/internal/backoff"
)

// ErrorCondition turns a completed response into an error when it returns
// true. It runs after the result pipelines.
type ErrorCondition func(res Response) bool

// DefaultErrorCondition rejects any non-2xx status.
func DefaultErrorCondition(res Response) bool {
	return res == nil || !res.IsSuccess()
}

// Client executes HTTP calls through a pipeline of request, result, stream
// and error hooks, layering debounce, throttle, deduplication, caching,
// retries with backoff, circuit breaking and metrics around the standard
// net/http client. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	baseURLErr error
	httpClient *http.Client
	transport  Transport
	runner     Runner
	timeout    time.Duration

	maxRetries      int
	retryDelay      time.Duration
	maxRetryDelay   time.Duration
	backoffFactor   float64
	jitter          float64
	backoffStrategy BackoffStrategy
	backoff         *backoff.Calculator
	retryCondition  RetryCondition

	debounceInterval time.Duration
	throttleInterval time.Duration
	debouncer        *Debouncer
	throttler        *Throttler

	cache          Store
	cacheTTL       time.Duration
	cacheKeyFn     CacheKeyFunc
	cacheCondition CacheCondition
	canCache       CanCache
	cachePipe      *cachePipeline

	circuitBreaker *CircuitBreaker

	dedup          *DedupTracker
	dedupKeyFunc   DedupKeyFunc
	dedupCondition DedupCondition

	pipelines []Pipeline
	errorIf   ErrorCondition
	onError   func(*Error)

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

var (
	_ Response = (*Result)(nil)
	_ Pipeline = (*BasePipeline)(nil)
	_ Pipeline = (*PipelineFuncs)(nil)
	_ Pipeline = (*cachePipeline)(nil)
	_ Store    = (*MemoryStore)(nil)
	_ Runner   = syncRunner{}
	_ Runner   = (*PoolRunner)(nil)
)
