// Package retry runs an operation under an exponential backoff policy.
//
// A policy walks Attempting → {Success, Retrying, Exhausted}. The delay
// before retry n (0-based) is min(MaxDelay, BaseDelay * ExponentialBase^n),
// optionally scaled by a uniform jitter factor and capped again at MaxDelay.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

// State is a step of the retry state machine.
type State int

const (
	Attempting State = iota
	Retrying
	Success
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Retrying:
		return "retrying"
	case Success:
		return "success"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Predicate classifies an error.
type Predicate func(error) bool

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is immutable once built by New.
type Policy struct {
	name            string
	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	exponentialBase float64
	jitter          bool
	jitterMin       float64
	jitterMax       float64
	retryable       Predicate
	nonRetryable    Predicate
	onRetry         func(err error, attempt int)
	observe         func(state State, attempt int, err error)
	sleep           Sleeper
	rand            func() float64
	log             *logger.Logger
}

// Option configures a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option { return func(p *Policy) { p.maxAttempts = n } }

func WithBaseDelay(d time.Duration) Option { return func(p *Policy) { p.baseDelay = d } }

func WithMaxDelay(d time.Duration) Option { return func(p *Policy) { p.maxDelay = d } }

func WithExponentialBase(b float64) Option { return func(p *Policy) { p.exponentialBase = b } }

// WithJitter scales each delay by a factor drawn uniformly from [min, max].
func WithJitter(min, max float64) Option {
	return func(p *Policy) {
		p.jitter = true
		p.jitterMin, p.jitterMax = min, max
	}
}

// WithoutJitter disables jitter.
func WithoutJitter() Option { return func(p *Policy) { p.jitter = false } }

// WithRetryable sets which errors are retried while attempts remain.
func WithRetryable(fn Predicate) Option { return func(p *Policy) { p.retryable = fn } }

// WithNonRetryable sets which errors abort immediately. It is checked
// before the retryable predicate.
func WithNonRetryable(fn Predicate) Option { return func(p *Policy) { p.nonRetryable = fn } }

// WithOnRetry registers a callback run before each backoff sleep.
func WithOnRetry(fn func(err error, attempt int)) Option { return func(p *Policy) { p.onRetry = fn } }

// WithObserver receives every state transition.
func WithObserver(fn func(state State, attempt int, err error)) Option {
	return func(p *Policy) { p.observe = fn }
}

func WithSleeper(fn Sleeper) Option { return func(p *Policy) { p.sleep = fn } }

// WithRand replaces the jitter source; fn must return values in [0, 1).
func WithRand(fn func() float64) Option { return func(p *Policy) { p.rand = fn } }

func WithName(name string) Option { return func(p *Policy) { p.name = name } }

func WithLogger(l *logger.Logger) Option { return func(p *Policy) { p.log = l } }

// New builds a policy. Defaults: 3 attempts, 1s base, 60s cap, base 2,
// jitter [0.5, 1.5], every error retryable except classified errors that
// declare themselves non-retryable and context cancellation.
func New(opts ...Option) *Policy {
	p := &Policy{
		name:            "operation",
		maxAttempts:     3,
		baseDelay:       time.Second,
		maxDelay:        60 * time.Second,
		exponentialBase: 2,
		jitter:          true,
		jitterMin:       0.5,
		jitterMax:       1.5,
		retryable:       func(error) bool { return true },
		nonRetryable:    DefaultNonRetryable,
		sleep:           sleepContext,
		rand:            rand.Float64,
		log:             logger.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.exponentialBase < 1 {
		p.exponentialBase = 1
	}
	if p.jitterMax < p.jitterMin {
		p.jitterMin, p.jitterMax = p.jitterMax, p.jitterMin
	}
	return p
}

// DefaultNonRetryable rejects context cancellation and classified errors
// that are not retryable.
func DefaultNonRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var c ingesterr.Classified
	if errors.As(err, &c) {
		return !c.Retryable()
	}
	return false
}

func (p *Policy) MaxAttempts() int { return p.maxAttempts }

func (p *Policy) MaxDelay() time.Duration { return p.maxDelay }

// BaseBackoff returns the unjittered delay before retry n (0-based).
func (p *Policy) BaseBackoff(n int) time.Duration {
	d := float64(p.baseDelay) * math.Pow(p.exponentialBase, float64(n))
	if d > float64(p.maxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return p.maxDelay
	}
	return time.Duration(d)
}

// Delay returns the delay before retry n including jitter. The result
// never exceeds MaxDelay.
func (p *Policy) Delay(n int) time.Duration {
	d := p.BaseBackoff(n)
	if !p.jitter {
		return d
	}
	factor := p.jitterMin + p.rand()*(p.jitterMax-p.jitterMin)
	j := time.Duration(float64(d) * factor)
	if j > p.maxDelay {
		return p.maxDelay
	}
	return j
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent. The last error is returned unchanged.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		p.emit(Attempting, attempt, nil)
		out, err := op(ctx)
		if err == nil {
			p.emit(Success, attempt, nil)
			return out, nil
		}
		lastErr = err

		if p.nonRetryable != nil && p.nonRetryable(err) {
			p.log.Warn("non-retryable error", "operation", p.name, "attempt", attempt+1, "error", err)
			p.emit(Exhausted, attempt, err)
			return zero, err
		}
		if p.retryable == nil || !p.retryable(err) {
			p.emit(Exhausted, attempt, err)
			return zero, err
		}
		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		p.log.Warn("attempt failed, retrying",
			"operation", p.name,
			"attempt", attempt+1,
			"max_attempts", p.maxAttempts,
			"delay", delay.String(),
			"error", err)
		p.emit(Retrying, attempt, err)
		if p.onRetry != nil {
			p.onRetry(err, attempt+1)
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			p.emit(Exhausted, attempt, err)
			return zero, err
		}
	}

	p.log.Error("all attempts failed", "operation", p.name, "max_attempts", p.maxAttempts, "error", lastErr)
	p.emit(Exhausted, p.maxAttempts-1, lastErr)
	return zero, lastErr
}

func (p *Policy) emit(s State, attempt int, err error) {
	if p.observe != nil {
		p.observe(s, attempt, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
