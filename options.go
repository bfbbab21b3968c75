package kurirgo

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ambiyansyah-risyal/kurirgo/internal/backoff"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithBaseURL sets the base URL that relative endpoints resolve against.
func WithBaseURL(rawURL string) Option {
	return func(c *Client) {
		u, err := url.Parse(rawURL)
		if err != nil {
			c.baseURLErr = fmt.Errorf("invalid base URL %q: %w", rawURL, err)
			return
		}
		c.baseURL = u
	}
}

// WithTimeout sets the per-attempt timeout. It is enforced through the
// attempt's context, so it bounds buffered calls end to end while leaving
// streaming bodies open until EOF or cancellation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many retries follow a failed attempt. Zero means
// a single attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the delay before the first retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxRetryDelay caps the delay between retries.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithBackoffFactor sets the multiplier applied to the delay after each
// retry.
func WithBackoffFactor(f float64) Option {
	return func(c *Client) {
		c.backoffFactor = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the delay curve between retries.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
		switch strategy {
		case DecorrelatedJitter:
			c.backoff = backoff.GetDecorrelatedJitterCalculator()
		default:
			c.backoff = backoff.GetExponentialJitterCalculator()
		}
	}
}

// WithRetryCondition sets the predicate deciding whether a failed attempt
// is retried.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithDebounce makes calls sharing a coordination key wait d after the most
// recent arrival before proceeding; superseded calls fail with ErrDebounced.
// Zero disables debouncing.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) {
		c.debounceInterval = d
	}
}

// WithThrottle rejects calls sharing a coordination key arriving within d
// of the last admitted one with ErrThrottled. Zero disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(c *Client) {
		c.throttleInterval = d
	}
}

// WithCache enables response caching with the default in-memory store. A
// TTL of zero leaves caching fully disabled.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewMemoryStore()
		c.cacheTTL = ttl
	}
}

// WithCacheStore enables caching backed by a custom store.
func WithCacheStore(store Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithCacheKeyStrategy selects how request URLs map to cache keys.
func WithCacheKeyStrategy(strategy CacheKeyStrategy) Option {
	return func(c *Client) {
		c.cacheKeyFn = keyFuncFor(strategy)
	}
}

// WithCacheKeyFunc sets a custom cache key function, overriding the key
// strategy.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFn = fn
	}
}

// WithCacheCondition sets which requests participate in caching.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCanCache sets the per-response storage veto.
func WithCanCache(fn CanCache) Option {
	return func(c *Client) {
		c.canCache = fn
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithPipelines appends pipelines to the client-level chain. They run in
// registration order in every phase.
func WithPipelines(pipelines ...Pipeline) Option {
	return func(c *Client) {
		c.pipelines = append(c.pipelines, pipelines...)
	}
}

// WithRunner sets where buffered attempts execute. Streaming calls always
// run on the calling goroutine.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithHTTPClient sets a custom HTTP client for the default transport. Leave
// its Timeout at zero on clients that stream; the per-attempt timeout covers
// buffered calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		c.transport = newHTTPTransport(client)
	}
}

// WithTransport replaces the transport used to execute attempts.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithErrorCondition sets the predicate that turns an HTTP response into an
// error after the result pipelines run. The default rejects any non-2xx
// status.
func WithErrorCondition(fn ErrorCondition) Option {
	return func(c *Client) {
		c.errorIf = fn
	}
}

// WithErrorHandler sets a global callback observing every error the client
// returns, after the error pipelines have run.
func WithErrorHandler(fn func(*Error)) Option {
	return func(c *Client) {
		c.onError = fn
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithPoolRunner executes buffered attempts on a pool of workers goroutines
// with a queue of queueSize waiting tasks.
func WithPoolRunner(workers, queueSize int) Option {
	return func(c *Client) {
		c.runner = NewPoolRunner(workers, queueSize)
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a plain console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating the
// correlation IDs attached to log lines.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithDedup coalesces concurrent identical calls onto a single request.
func WithDedup() Option {
	return func(c *Client) {
		c.dedup = NewDedupTracker()
	}
}

// WithDedupKeyFunc sets a custom deduplication key function.
func WithDedupKeyFunc(fn DedupKeyFunc) Option {
	return func(c *Client) {
		c.dedupKeyFunc = fn
	}
}

// WithDedupCondition sets which calls participate in deduplication.
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// ValidateConfiguration checks the client configuration and returns an
// error aggregating every problem found.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateCoordinationConfig()...)
	errs = append(errs, c.validateCacheConfig()...)
	errs = append(errs, c.validateCircuitBreakerConfig()...)
	errs = append(errs, c.validateDebugConfig()...)
	errs = append(errs, c.validateDedupConfig()...)
	errs = append(errs, c.validatePipelineConfig()...)
	errs = append(errs, c.validateTransportConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) > 0 {
		return &Error{
			Kind:    KindValidation,
			Message: "configuration validation failed",
			Cause:   errors.Newf("validation errors: %v", errs),
		}
	}

	return nil
}

// validateRetryConfig validates retry-related configuration.
func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}

	if c.retryDelay <= 0 {
		errs = append(errs, "retryDelay must be positive")
	}

	if c.maxRetryDelay < c.retryDelay {
		errs = append(errs, "maxRetryDelay must be greater than or equal to retryDelay")
	}

	if c.backoffFactor <= 0 {
		errs = append(errs, "backoffFactor must be positive")
	}

	// Jitter is clamped in WithJitter; this catches values set directly.
	if c.jitter < 0 || c.jitter > 1 {
		errs = append(errs, "jitter must be between 0 and 1")
	}

	if c.timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}

	if c.retryCondition == nil {
		errs = append(errs, "retryCondition must be set")
	}

	return errs
}

// validateCoordinationConfig validates debounce and throttle configuration.
// Zero means disabled for both, so only negative values are rejected.
func (c *Client) validateCoordinationConfig() []string {
	var errs []string

	if c.debounceInterval < 0 {
		errs = append(errs, "debounce interval must be non-negative")
	}

	if c.throttleInterval < 0 {
		errs = append(errs, "throttle interval must be non-negative")
	}

	return errs
}

// validateCacheConfig validates cache configuration. A zero TTL is legal
// and leaves the cache disabled.
func (c *Client) validateCacheConfig() []string {
	var errs []string

	if c.cacheTTL < 0 {
		errs = append(errs, "cacheTTL must be non-negative")
	}

	if c.cache != nil {
		if c.cacheKeyFn == nil {
			errs = append(errs, "cache key function must be set when cache is enabled")
		}
		if c.cacheCondition == nil {
			errs = append(errs, "cache condition must be set when cache is enabled")
		}
		if c.canCache == nil {
			errs = append(errs, "canCache must be set when cache is enabled")
		}
	}

	return errs
}

// validateCircuitBreakerConfig validates circuit breaker configuration.
func (c *Client) validateCircuitBreakerConfig() []string {
	var errs []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errs = append(errs, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errs = append(errs, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errs = append(errs, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return errs
}

// validateDebugConfig validates debug configuration.
func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

// validateDedupConfig validates deduplication configuration.
func (c *Client) validateDedupConfig() []string {
	var errs []string

	if c.dedup != nil {
		if c.dedupKeyFunc == nil {
			errs = append(errs, "dedup key function must be set when dedup is enabled")
		}
		if c.dedupCondition == nil {
			errs = append(errs, "dedup condition must be set when dedup is enabled")
		}
	}

	return errs
}

// validatePipelineConfig validates the client-level pipeline chain.
func (c *Client) validatePipelineConfig() []string {
	var errs []string

	for i, p := range c.pipelines {
		if p == nil {
			errs = append(errs, fmt.Sprintf("pipelines[%d] cannot be nil", i))
		}
	}

	return errs
}

// validateTransportConfig validates the transport layer configuration.
func (c *Client) validateTransportConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}

	if c.transport == nil {
		errs = append(errs, "transport cannot be nil")
	}

	if c.runner == nil {
		errs = append(errs, "runner cannot be nil")
	}

	if c.errorIf == nil {
		errs = append(errs, "error condition cannot be nil")
	}

	if c.baseURLErr != nil {
		errs = append(errs, c.baseURLErr.Error())
	}

	return errs
}

// validateExtremeValues rejects configuration values far outside reasonable
// bounds.
func (c *Client) validateExtremeValues() []string {
	var errs []string

	if c.maxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}

	if c.retryDelay > 10*time.Minute {
		errs = append(errs, "retryDelay > 10m may cause very long delays")
	}
	if c.maxRetryDelay > 1*time.Hour {
		errs = append(errs, "maxRetryDelay > 1h may cause extremely long delays")
	}

	if c.timeout > 10*time.Minute {
		errs = append(errs, "timeout > 10m may cause requests to hang for too long")
	}

	if c.debounceInterval > 10*time.Minute {
		errs = append(errs, "debounce interval > 10m may delay calls indefinitely")
	}

	if c.cache != nil && c.cacheTTL > 24*time.Hour {
		errs = append(errs, "cacheTTL > 24h may cause stale data issues")
	}

	return errs
}
