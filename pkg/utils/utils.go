// Package utils provides small numeric and decimal helpers shared across
// the TradeNova pipeline: moving averages for the Feature Engine, decimal
// rounding for strike/price normalization, and a generic retry helper.
package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RoundToTickSize rounds a price down to the nearest tick size.
func RoundToTickSize(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// MinDecimal returns the smaller of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal clamps value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// ClampFloat clamps value to [min, max].
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// RetryConfig configures exponential backoff for Retry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches the broker adapter's spec'd defaults: base 1s,
// 3 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries fn with exponential backoff, stopping early if shouldRetry
// returns false for the latest error (for example, to separate
// ErrBrokerTransient from ErrBrokerPermanent).
func Retry[T any](config RetryConfig, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return result, err
		}
		if attempt == config.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}

// EMA is a streaming exponential moving average.
type EMA struct {
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates an EMA with the standard 2/(period+1) smoothing factor.
func NewEMA(period int) *EMA {
	return &EMA{multiplier: 2.0 / float64(period+1)}
}

// Add folds in value and returns the updated EMA.
func (e *EMA) Add(value float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = value
		return e.current
	}
	e.current = (value-e.current)*e.multiplier + e.current
	return e.current
}

// Current returns the EMA's latest value.
func (e *EMA) Current() float64 { return e.current }

// SMA is a streaming simple moving average over a fixed window.
type SMA struct {
	period int
	values []float64
	sum    float64
}

// NewSMA creates an SMA over period samples.
func NewSMA(period int) *SMA {
	return &SMA{period: period, values: make([]float64, 0, period)}
}

// Add folds in value and returns the updated SMA.
func (s *SMA) Add(value float64) float64 {
	s.values = append(s.values, value)
	s.sum += value
	if len(s.values) > s.period {
		s.sum -= s.values[0]
		s.values = s.values[1:]
	}
	return s.sum / float64(len(s.values))
}

// Current returns the SMA's latest value, or zero if no samples.
func (s *SMA) Current() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return s.sum / float64(len(s.values))
}

// StdDev returns the sample standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// IsFinite reports whether f is neither NaN nor +/-Inf.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AllFinite reports whether every value in fs is finite.
func AllFinite(fs ...float64) bool {
	for _, f := range fs {
		if !IsFinite(f) {
			return false
		}
	}
	return true
}
