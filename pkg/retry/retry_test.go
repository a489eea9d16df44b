package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/config"
	apperrors "mailpulse/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return apperrors.ErrTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentClasses(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth failure", apperrors.ErrAuthFailure},
		{"gone", apperrors.ErrSubscriptionGone.WithDetail("id", "sub-1")},
		{"explicit fatal", NewFatalError(errors.New("boom"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(5), func() error {
				calls++
				return tt.err
			})

			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRetryWithCallback_ReportsAttempts(t *testing.T) {
	var attempts []int
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		return errors.New("network down")
	}, func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestPolicyFromConfig_FillsDefaults(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond})

	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Millisecond, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxInterval, p.MaxInterval)
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
}

func TestPolicySchedule_NeverStops(t *testing.T) {
	p := Policy{InitialInterval: 10 * time.Millisecond, MaxInterval: 40 * time.Millisecond, Multiplier: 2}
	schedule := p.Schedule()

	for i := 0; i < 50; i++ {
		d := schedule.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		assert.LessOrEqual(t, d, 60*time.Millisecond, "randomized delay stays within 1.5x the cap")
	}

	schedule.Reset()
	assert.LessOrEqual(t, schedule.NextBackOff(), 15*time.Millisecond)
}
