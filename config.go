package kurirgo

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

// EnvConfig carries the client settings that can be supplied through
// KURIRGO_* environment variables. Zero values keep the corresponding
// feature at its default (or disabled, for the coordination intervals,
// cache and circuit breaker).
type EnvConfig struct {
	BaseURL       string        `env:"KURIRGO_BASE_URL"`
	Timeout       time.Duration `env:"KURIRGO_TIMEOUT" envDefault:"30s"`
	MaxRetries    int           `env:"KURIRGO_MAX_RETRIES" envDefault:"3"`
	RetryDelay    time.Duration `env:"KURIRGO_RETRY_DELAY" envDefault:"100ms"`
	MaxRetryDelay time.Duration `env:"KURIRGO_MAX_RETRY_DELAY" envDefault:"10s"`
	BackoffFactor float64       `env:"KURIRGO_BACKOFF_FACTOR" envDefault:"2.0"`
	Jitter        float64       `env:"KURIRGO_JITTER" envDefault:"0"`
	// BackoffStrategy selects the delay curve: "exponential" or
	// "decorrelated".
	BackoffStrategy string `env:"KURIRGO_BACKOFF_STRATEGY" envDefault:"exponential"`

	DebounceInterval time.Duration `env:"KURIRGO_DEBOUNCE_INTERVAL" envDefault:"0"`
	ThrottleInterval time.Duration `env:"KURIRGO_THROTTLE_INTERVAL" envDefault:"0"`

	// CacheTTL enables the in-memory response cache when positive.
	CacheTTL time.Duration `env:"KURIRGO_CACHE_TTL" envDefault:"0"`
	// CacheKeyStrategy is "full_url" or "strip_query".
	CacheKeyStrategy string `env:"KURIRGO_CACHE_KEY_STRATEGY" envDefault:"full_url"`

	Dedup bool `env:"KURIRGO_DEDUP" envDefault:"false"`

	CircuitBreakerEnabled bool          `env:"KURIRGO_CIRCUIT_BREAKER" envDefault:"false"`
	FailureThreshold      int           `env:"KURIRGO_CB_FAILURE_THRESHOLD" envDefault:"5"`
	RecoveryTimeout       time.Duration `env:"KURIRGO_CB_RECOVERY_TIMEOUT" envDefault:"60s"`
	SuccessThreshold      int           `env:"KURIRGO_CB_SUCCESS_THRESHOLD" envDefault:"2"`

	Metrics bool `env:"KURIRGO_METRICS" envDefault:"false"`
	Debug   bool `env:"KURIRGO_DEBUG" envDefault:"false"`

	PoolWorkers int `env:"KURIRGO_POOL_WORKERS" envDefault:"0"`
	PoolQueue   int `env:"KURIRGO_POOL_QUEUE" envDefault:"0"`
}

// ParseEnvConfig reads the KURIRGO_* environment variables.
func ParseEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "kurirgo: parsing environment")
	}
	return cfg, nil
}

// Options translates the parsed configuration into client options.
func (cfg EnvConfig) Options() ([]Option, error) {
	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(cfg.RetryDelay),
		WithMaxRetryDelay(cfg.MaxRetryDelay),
		WithBackoffFactor(cfg.BackoffFactor),
		WithJitter(cfg.Jitter),
	}

	strategy, err := cfg.backoffStrategy()
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithBackoffStrategy(strategy))

	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.DebounceInterval > 0 {
		opts = append(opts, WithDebounce(cfg.DebounceInterval))
	}
	if cfg.ThrottleInterval > 0 {
		opts = append(opts, WithThrottle(cfg.ThrottleInterval))
	}

	if cfg.CacheTTL > 0 {
		keyStrategy, err := cfg.cacheKeyStrategy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCache(cfg.CacheTTL), WithCacheKeyStrategy(keyStrategy))
	}

	if cfg.Dedup {
		opts = append(opts, WithDedup())
	}

	if cfg.CircuitBreakerEnabled {
		opts = append(opts, WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  cfg.RecoveryTimeout,
			SuccessThreshold: cfg.SuccessThreshold,
		}))
	}

	if cfg.Metrics {
		opts = append(opts, WithMetrics())
	}
	if cfg.Debug {
		opts = append(opts, WithSimpleLogger())
	}
	if cfg.PoolWorkers > 0 {
		opts = append(opts, WithPoolRunner(cfg.PoolWorkers, cfg.PoolQueue))
	}

	return opts, nil
}

func (cfg EnvConfig) backoffStrategy() (BackoffStrategy, error) {
	switch strings.ToLower(cfg.BackoffStrategy) {
	case "", "exponential":
		return ExponentialJitter, nil
	case "decorrelated":
		return DecorrelatedJitter, nil
	default:
		return 0, errors.Newf("kurirgo: unknown backoff strategy %q", cfg.BackoffStrategy)
	}
}

func (cfg EnvConfig) cacheKeyStrategy() (CacheKeyStrategy, error) {
	switch strings.ToLower(cfg.CacheKeyStrategy) {
	case "", "full_url":
		return CacheKeyFullURL, nil
	case "strip_query":
		return CacheKeyStripQuery, nil
	default:
		return 0, errors.Newf("kurirgo: unknown cache key strategy %q", cfg.CacheKeyStrategy)
	}
}

// NewFromEnv builds a client from KURIRGO_* environment variables. Options
// passed here are applied after the environment-derived ones, so they win
// on conflict.
func NewFromEnv(extra ...Option) (*Client, error) {
	cfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := New(append(opts, extra...)...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}
