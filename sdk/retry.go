package sdk

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines the delay between query attempts.
//
// The SDK provides several built-in strategies:
//   - LinearBackoffStrategy: interval times the attempt number (the default)
//   - ConstantBackoffStrategy: fixed delay between attempts
//   - ExponentialBackoffStrategy: exponentially increasing delays with jitter
//
// You can also implement custom strategies:
//
//	strategy := sdk.RetryStrategyFunc(func(attempt int) time.Duration {
//	    return time.Duration(attempt*attempt) * time.Second
//	})
type RetryStrategy interface {
	// NextInterval returns the delay after failed attempt number attempt
	// (1 for the first failure).
	NextInterval(attempt int) time.Duration
}

// RetryStrategyFunc adapts a function to RetryStrategy.
type RetryStrategyFunc func(attempt int) time.Duration

// NextInterval calls f.
func (f RetryStrategyFunc) NextInterval(attempt int) time.Duration {
	return f(attempt)
}

// LinearBackoffStrategy waits Interval times the attempt number:
// 1s, 2s, 3s... with the default interval.
type LinearBackoffStrategy struct {
	Interval time.Duration
}

// DefaultLinearBackoff returns the 1s linear strategy queries use by
// default.
func DefaultLinearBackoff() *LinearBackoffStrategy {
	return &LinearBackoffStrategy{Interval: time.Second}
}

// NextInterval returns the next retry interval
func (s *LinearBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return s.Interval * time.Duration(attempt)
}

// ConstantBackoffStrategy waits the same interval before every retry.
type ConstantBackoffStrategy struct {
	Interval time.Duration
}

// DefaultConstantBackoff returns a 500ms constant strategy.
func DefaultConstantBackoff() *ConstantBackoffStrategy {
	return &ConstantBackoffStrategy{Interval: 500 * time.Millisecond}
}

// NextInterval returns the next retry interval
func (s *ConstantBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return s.Interval
}

// ExponentialBackoffStrategy multiplies the delay after every failure.
//
// Example:
//
//	strategy := &sdk.ExponentialBackoffStrategy{
//	    InitialInterval: 200 * time.Millisecond,
//	    MaxInterval:     5 * time.Second,
//	    Multiplier:      2.0,
//	    Jitter:          0.2, // ±20%
//	}
type ExponentialBackoffStrategy struct {
	// InitialInterval is the delay after the first failure.
	InitialInterval time.Duration

	// MaxInterval caps the delay.
	MaxInterval time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
}

// DefaultExponentialBackoff returns 100ms doubling up to 5s with ±30% jitter.
func DefaultExponentialBackoff() *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.3,
	}
}

// NextInterval calculates the next retry interval
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))
	if s.MaxInterval > 0 && interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}

	if s.Jitter > 0 {
		jitterRange := interval * s.Jitter
		interval += jitterRange * (2*rand.Float64() - 1)
	}
	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer based SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryState is a state of the retry machine.
type RetryState int

const (
	StateIdle RetryState = iota
	StateAttempting
	StateSucceeded
	StateExhausted
)

func (s RetryState) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// retryMachine runs fn sequentially until it succeeds or maxAttempts
// attempts have failed:
//
//	Idle -> Attempting(1) -> Succeeded
//	                      -> Attempting(n+1) after a backoff sleep
//	                      -> Exhausted once n == maxAttempts
type retryMachine[T any] struct {
	maxAttempts int
	strategy    RetryStrategy
	sleep       SleepFunc
	onRetry     func(attempt int, delay time.Duration, err error)

	state   RetryState
	attempt int
	result  T
	err     error
}

func (m *retryMachine[T]) run(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	m.state = StateAttempting
	m.attempt = 1

	for {
		switch m.state {
		case StateSucceeded:
			return m.result, nil
		case StateExhausted:
			var zero T
			return zero, m.err
		}

		if err := ctx.Err(); err != nil {
			m.fail(err)
			continue
		}

		v, err := fn(ctx)
		if err == nil {
			m.result = v
			m.state = StateSucceeded
			continue
		}
		m.err = err
		if m.attempt >= m.maxAttempts {
			m.state = StateExhausted
			continue
		}

		delay := m.strategy.NextInterval(m.attempt)
		m.attempt++
		if m.onRetry != nil {
			m.onRetry(m.attempt, delay, err)
		}
		if serr := m.sleep(ctx, delay); serr != nil {
			m.fail(serr)
		}
	}
}

func (m *retryMachine[T]) fail(err error) {
	m.err = err
	m.state = StateExhausted
}
