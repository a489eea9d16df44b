package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mailpulse/internal/subscription"
	"mailpulse/pkg/clock"
)

type staticChecker struct {
	name string
	err  error
}

func (c staticChecker) Name() string { return c.name }
func (c staticChecker) Check(ctx context.Context) error { return c.err }

func TestRegistry_Aggregates(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(staticChecker{name: "ok"})
	assert.Equal(t, StatusHealthy, r.Check(context.Background()).Status)

	r.Register(staticChecker{name: "slow", err: Degraded(errors.New("lagging"))})
	h := r.Check(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, "lagging", h.Checks["slow"].Message)

	r.Register(staticChecker{name: "down", err: errors.New("refused")})
	h = r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusDegraded, h.Checks["slow"].Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["down"].Status)
}

type snapshot struct {
	rec *subscription.Record
}

func (s snapshot) Snapshot() (subscription.Record, bool) {
	if s.rec == nil {
		return subscription.Record{}, false
	}
	return *s.rec, true
}

func TestSubscriptionChecker(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	var degraded *degradedError
	check := func(rec *subscription.Record) error {
		return NewSubscriptionChecker(snapshot{rec: rec}, clk).Check(context.Background())
	}

	assert.True(t, errors.As(check(nil), &degraded))
	assert.NoError(t, check(&subscription.Record{Status: subscription.StatusActive}))

	err := check(&subscription.Record{Status: subscription.StatusRenewalFailed, ExpiresAt: now.Add(time.Minute)})
	assert.True(t, errors.As(err, &degraded))

	err = check(&subscription.Record{Status: subscription.StatusRenewalFailed, ExpiresAt: now.Add(-time.Minute)})
	assert.Error(t, err)
	assert.False(t, errors.As(err, &degraded))

	err = check(&subscription.Record{Status: subscription.StatusExpired, LastError: "boom"})
	assert.False(t, errors.As(err, &degraded))
}
