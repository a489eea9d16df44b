// Package scheduler drives periodic subscription checks.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mailpulse/internal/logger"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/retry"
)

// Lifecycle is the part of the subscription manager the renewer drives.
type Lifecycle interface {
	EnsureActive(ctx context.Context) error
	Refresh(ctx context.Context) error
	IsLive() bool
	IsTornDown() bool
}

// Renewer ensures the subscription once at start and then refreshes it on
// every tick. While no subscription is live it retries on the backoff
// schedule of its retry policy, never waiting longer than a tick. Each
// check runs under a deadline equal to the interval so a hung provider call
// cannot delay the next one.
type Renewer struct {
	lifecycle Lifecycle
	interval  time.Duration
	schedule  *backoff.ExponentialBackOff
	logger    logger.Logger
}

func NewRenewer(lifecycle Lifecycle, interval time.Duration, policy retry.Policy, log logger.Logger) *Renewer {
	return &Renewer{
		lifecycle: lifecycle,
		interval:  interval,
		schedule:  policy.Schedule(),
		logger:    log,
	}
}

// Run blocks until ctx is cancelled or a check fails with an authentication
// error, which no later check can recover from.
func (r *Renewer) Run(ctx context.Context) error {
	r.logger.Infow("Renewal scheduler started", "interval", r.interval)

	if err := r.check(ctx, r.lifecycle.EnsureActive); err != nil {
		return err
	}

	timer := time.NewTimer(r.next(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Renewal scheduler stopped")
			return nil
		case <-timer.C:
			if r.lifecycle.IsTornDown() {
				r.logger.DebugwCtx(ctx, "Subscription torn down, skipping renewal check")
				metrics.IncSubscriptionOperation("tick", "skipped")
			} else if err := r.check(ctx, r.lifecycle.Refresh); err != nil {
				return err
			}
			timer.Reset(r.next(ctx))
		}
	}
}

// next is the wait before the following check: a full interval once a
// subscription is live or torn down, the next backoff step otherwise.
func (r *Renewer) next(ctx context.Context) time.Duration {
	if r.lifecycle.IsLive() || r.lifecycle.IsTornDown() {
		r.schedule.Reset()
		return r.interval
	}

	delay := r.schedule.NextBackOff()
	if delay == backoff.Stop || delay > r.interval {
		delay = r.interval
	}
	r.logger.InfowCtx(ctx, "No live subscription, retrying early", "delay", delay)
	return delay
}

func (r *Renewer) check(ctx context.Context, ensure func(context.Context) error) error {
	tickCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	err := ensure(tickCtx)
	switch {
	case err == nil:
		metrics.IncSubscriptionOperation("tick", "success")
		return nil
	case ctx.Err() != nil:
		return nil
	case apperrors.IsAuthFailure(err):
		metrics.IncSubscriptionOperation("tick", "fatal")
		r.logger.ErrorwCtx(ctx, "Provider rejected credentials, stopping scheduler", "error", err)
		return err
	case errors.Is(err, context.DeadlineExceeded):
		metrics.IncSubscriptionOperation("tick", "timeout")
		r.logger.WarnwCtx(ctx, "Renewal check timed out", "timeout", r.interval)
		return nil
	default:
		metrics.IncSubscriptionOperation("tick", "error")
		r.logger.WarnwCtx(ctx, "Renewal check failed", "error", err)
		return nil
	}
}
