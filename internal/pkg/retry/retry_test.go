package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sleeps []time.Duration
	states []State
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recorder) observe(s State, _ int, _ error) { r.states = append(r.states, s) }

func quiet() Option { return WithLogger(logger.New("test", io.Discard)) }

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	rec := &recorder{}
	p := New(WithMaxAttempts(3), WithBaseDelay(100*time.Millisecond), WithoutJitter(),
		WithSleeper(rec.sleep), WithObserver(rec.observe), quiet())

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.sleeps)
	assert.Equal(t, []State{Attempting, Retrying, Attempting, Retrying, Attempting, Success}, rec.states)
}

func TestExecuteExhaustedReturnsLastError(t *testing.T) {
	rec := &recorder{}
	p := New(WithMaxAttempts(3), WithSleeper(rec.sleep), quiet())

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("failure " + string(rune('0'+calls)))
	})

	require.Error(t, err)
	assert.Equal(t, "failure 3", err.Error())
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.sleeps, 2)
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	rec := &recorder{}
	sentinel := errors.New("bad request")
	p := New(WithMaxAttempts(5), WithSleeper(rec.sleep), quiet(),
		WithNonRetryable(func(err error) bool { return errors.Is(err, sentinel) }))

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.sleeps)
}

func TestClassifiedNonRetryableByDefault(t *testing.T) {
	rec := &recorder{}
	p := New(WithSleeper(rec.sleep), quiet())

	calls := 0
	cfgErr := ingesterr.NewConfigurationFailure("bad input", "event.Records", nil)
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return cfgErr
	})

	assert.Same(t, cfgErr, err)
	assert.Equal(t, 1, calls)

	calls = 0
	svcErr := ingesterr.NewServiceFailure("S3", "GetObject", errors.New("timeout"))
	err = p.Execute(context.Background(), func(context.Context) error {
		calls++
		return svcErr
	})
	assert.Same(t, svcErr, err)
	assert.Equal(t, 3, calls)
}

func TestUnmatchedErrorPropagatesWithoutRetry(t *testing.T) {
	rec := &recorder{}
	p := New(WithSleeper(rec.sleep), quiet(),
		WithRetryable(func(err error) bool { return false }))

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("other")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnRetryCallback(t *testing.T) {
	var attempts []int
	p := New(WithMaxAttempts(3), WithSleeper((&recorder{}).sleep), quiet(),
		WithOnRetry(func(_ error, attempt int) { attempts = append(attempts, attempt) }))

	_ = p.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	p := New(WithBaseDelay(500*time.Millisecond), WithMaxDelay(10*time.Second), WithExponentialBase(2), quiet())

	prev := time.Duration(0)
	for n := 0; n < 40; n++ {
		d := p.BaseBackoff(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, 10*time.Second, "attempt %d", n)
		prev = d
	}
	assert.Equal(t, 10*time.Second, p.BaseBackoff(1000))
}

func TestJitterBoundsAndCap(t *testing.T) {
	low := New(WithBaseDelay(time.Second), WithMaxDelay(time.Minute), WithJitter(0.5, 1.5),
		WithRand(func() float64 { return 0 }), quiet())
	high := New(WithBaseDelay(time.Second), WithMaxDelay(time.Minute), WithJitter(0.5, 1.5),
		WithRand(func() float64 { return 0.999999 }), quiet())

	assert.Equal(t, 500*time.Millisecond, low.Delay(0))
	assert.InDelta(t, float64(1500*time.Millisecond), float64(high.Delay(0)), float64(time.Millisecond))

	// jitter above 1 never pushes a capped delay past MaxDelay
	assert.Equal(t, time.Minute, high.Delay(20))
}

func TestDoReturnsValue(t *testing.T) {
	p := New(WithSleeper((&recorder{}).sleep), quiet())
	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("once")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(WithBaseDelay(time.Hour), WithMaxDelay(time.Hour), WithoutJitter(), quiet())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Execute(ctx, func(context.Context) error {
			calls++
			return errors.New("down")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.EqualError(t, err, "down")
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestMinimumOneAttempt(t *testing.T) {
	p := New(WithMaxAttempts(0), quiet())
	assert.Equal(t, 1, p.MaxAttempts())
}
