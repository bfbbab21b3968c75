package backoff

import (
	"time"
)

// Calculator applies a Strategy to produce retry delays.
type Calculator struct {
	strategy Strategy
}

// NewCalculator returns a Calculator using the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the backoff duration for the given zero-based retry
// number and parameters.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// SetStrategy replaces the strategy used by this calculator.
func (c *Calculator) SetStrategy(strategy Strategy) {
	c.strategy = strategy
}

// GetStrategy returns the strategy in use.
func (c *Calculator) GetStrategy() Strategy {
	return c.strategy
}

// GetExponentialJitterCalculator returns a calculator with the exponential
// jitter strategy.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// GetDecorrelatedJitterCalculator returns a calculator with the decorrelated
// jitter strategy.
func GetDecorrelatedJitterCalculator() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
