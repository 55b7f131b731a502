package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(attempts int) []Option {
	return []Option{
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitter(0),
	}
}

func do(ctx context.Context, op func(context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int

	opts := append(fast(5), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}))
	err := do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	}, opts...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ExhaustedReturnsUnwrappedError(t *testing.T) {
	calls := 0
	err := do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	}, fast(3)...)

	assert.Equal(t, 3, calls)
	assert.Equal(t, errFlaky, err)
	assert.False(t, IsRetryable(err))
}

func TestDo_PlainAndPermanentErrorsStopImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "plain", err: errFlaky, want: errFlaky},
		{name: "permanent", err: Permanent(errFlaky), want: errFlaky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := do(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			}, fast(5)...)

			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestDo_RetryIfOverridesMarkers(t *testing.T) {
	calls := 0
	opts := append(fast(3), WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))

	err := do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, opts...)

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := do(ctx, func(context.Context) error {
		calls++
		return nil
	}, fast(3)...)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(10))
}

func TestConversationRetrier_AtLeastOneAttempt(t *testing.T) {
	r := ConversationRetrier(0, time.Millisecond, time.Millisecond, nil)
	assert.Equal(t, 1, r.config.MaxAttempts)
}

func TestConnectRetrier(t *testing.T) {
	calls := 0
	err := ConnectRetrier(3, nil).Do(context.Background(), func(context.Context) error {
		calls++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	calls = 0
	var retried int
	err = ConnectRetrier(3, func(int, error, time.Duration) { retried++ }).Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retried)
}
