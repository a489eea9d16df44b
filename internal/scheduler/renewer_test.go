package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/logger"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/retry"
)

type fakeLifecycle struct {
	ensures   atomic.Int32
	refreshes atomic.Int32
	live      atomic.Bool
	tornDown  atomic.Bool
	errs      chan error
	block     bool
}

func (f *fakeLifecycle) EnsureActive(ctx context.Context) error {
	f.ensures.Add(1)
	return f.result(ctx)
}

func (f *fakeLifecycle) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	return f.result(ctx)
}

func (f *fakeLifecycle) result(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case err := <-f.errs:
		return err
	default:
		return nil
	}
}

func (f *fakeLifecycle) calls() int32 {
	return f.ensures.Load() + f.refreshes.Load()
}

func (f *fakeLifecycle) IsLive() bool     { return f.live.Load() }
func (f *fakeLifecycle) IsTornDown() bool { return f.tornDown.Load() }

func fastRetry() retry.Policy {
	return retry.Policy{InitialInterval: 2 * time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func runRenewer(t *testing.T, r *Renewer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return cancel, done
}

func TestRenewer_EnsuresAtStartThenRefreshesOnTicks(t *testing.T) {
	lc := &fakeLifecycle{errs: make(chan error, 4)}
	lc.live.Store(true)
	lc.errs <- apperrors.ErrTransient

	cancel, done := runRenewer(t, NewRenewer(lc, 10*time.Millisecond, fastRetry(), logger.NopLogger()))

	require.Eventually(t, func() bool { return lc.refreshes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), lc.ensures.Load())
}

func TestRenewer_RetriesEarlyUntilLive(t *testing.T) {
	lc := &fakeLifecycle{errs: make(chan error, 8)}
	for i := 0; i < 3; i++ {
		lc.errs <- apperrors.ErrTransient
	}

	cancel, done := runRenewer(t, NewRenewer(lc, time.Hour, fastRetry(), logger.NopLogger()))
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool { return lc.calls() >= 4 }, time.Second, time.Millisecond)

	lc.live.Store(true)
	time.Sleep(30 * time.Millisecond)
	settled := lc.calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, lc.calls(), "a live subscription waits the full interval")
}

func TestRenewer_AuthFailureStops(t *testing.T) {
	lc := &fakeLifecycle{errs: make(chan error, 1)}
	lc.errs <- apperrors.ErrAuthFailure.WithDetail("status_code", 401)

	r := NewRenewer(lc, 10*time.Millisecond, fastRetry(), logger.NopLogger())
	err := r.Run(context.Background())

	assert.True(t, apperrors.IsAuthFailure(err))
	assert.Equal(t, int32(1), lc.calls())
}

func TestRenewer_SkipsRefreshWhenTornDown(t *testing.T) {
	lc := &fakeLifecycle{errs: make(chan error)}
	lc.tornDown.Store(true)

	r := NewRenewer(lc, 5*time.Millisecond, fastRetry(), logger.NopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(1), lc.ensures.Load(), "startup ensure recreates after a teardown")
	assert.Equal(t, int32(0), lc.refreshes.Load())
}

func TestRenewer_TickDeadline(t *testing.T) {
	lc := &fakeLifecycle{block: true}

	cancel, done := runRenewer(t, NewRenewer(lc, 10*time.Millisecond, fastRetry(), logger.NopLogger()))

	require.Eventually(t, func() bool { return lc.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
