package subscription

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/graph"
	"mailpulse/internal/logger"
	"mailpulse/pkg/clock"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/logging"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/tracing"
)

// Provider is the subset of the graph client the manager drives.
type Provider interface {
	CreateSubscription(ctx context.Context, req graph.SubscriptionRequest) (*graph.Subscription, error)
	RenewSubscription(ctx context.Context, id string, expiresAt time.Time) (time.Time, error)
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]graph.Subscription, error)
}

type Options struct {
	Resource        string
	NotificationURL string
	ChangeType      string
	Lifetime        time.Duration
	RenewalMargin   float64
	PurgeOrphans    bool

	// AttemptTimeout bounds one shared ensure attempt, independent of the
	// callers waiting on it.
	AttemptTimeout time.Duration
}

func OptionsFromConfig(g config.GraphConfig, s config.SubscriptionConfig) Options {
	return Options{
		Resource:        g.Resource(),
		NotificationURL: g.CallbackURL,
		ChangeType:      s.ChangeType,
		Lifetime:        s.Lifetime,
		RenewalMargin:   s.RenewalMargin,
		PurgeOrphans:    s.PurgeOrphans,
		AttemptTimeout:  s.Tick(),
	}
}

// Manager owns the subscription record. Decisions are serialized by mu;
// concurrent EnsureActive callers share one in-flight attempt.
type Manager struct {
	provider Provider
	store    Store
	opts     Options
	clock    clock.Clock
	logger   logger.Logger

	newClientState func() (string, error)

	mu     sync.Mutex
	record *Record
	loaded bool

	group    singleflight.Group
	snapshot atomic.Pointer[Record]
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithClientStateGenerator(fn func() (string, error)) Option {
	return func(m *Manager) { m.newClientState = fn }
}

func NewManager(provider Provider, store Store, opts Options, log logger.Logger, options ...Option) *Manager {
	if opts.Lifetime <= 0 || opts.Lifetime > constants.MaxSubscriptionLifetime {
		opts.Lifetime = constants.MaxSubscriptionLifetime
	}
	if opts.RenewalMargin <= 0 || opts.RenewalMargin >= 1 {
		opts.RenewalMargin = constants.DefaultRenewalMargin
	}
	if opts.ChangeType == "" {
		opts.ChangeType = constants.DefaultChangeType
	}

	m := &Manager{
		provider:       provider,
		store:          store,
		opts:           opts,
		clock:          clock.Real(),
		logger:         log,
		newClientState: GenerateClientState,
	}
	for _, o := range options {
		o(m)
	}
	if m.opts.AttemptTimeout <= 0 {
		m.opts.AttemptTimeout = m.Margin() / 2
	}
	return m
}

// Margin is the remaining lifetime below which a renewal is due.
func (m *Manager) Margin() time.Duration {
	return time.Duration(float64(m.opts.Lifetime) * m.opts.RenewalMargin)
}

// Start loads the persisted record. Records for another resource, or for
// this resource with another callback, are stale: their provider
// subscriptions are deleted and the records removed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	rec, err := m.store.Load(ctx, m.opts.Resource)
	switch {
	case apperrors.IsNotFound(err):
		rec = nil
	case err != nil:
		return fmt.Errorf("failed to load subscription record: %w", err)
	}

	m.purgeStaleRecordsLocked(ctx)

	if rec != nil && rec.NotificationURL != m.opts.NotificationURL {
		m.logger.WarnwCtx(ctx, "Discarding record for previous callback",
			"subscription_id", rec.ID,
			"resource", rec.Resource,
			"notification_url", rec.NotificationURL,
		)
		m.bestEffortDelete(ctx, rec.ID)
		if err := m.store.Delete(ctx, rec.Resource); err != nil {
			m.logger.WarnwCtx(ctx, "Failed to delete stale record", "error", err)
		}
		rec = nil
	}

	if rec != nil {
		m.logger.InfowCtx(ctx, "Loaded subscription record",
			"subscription_id", rec.ID,
			"status", rec.Status,
			"expires_at", rec.ExpiresAt,
		)
	}

	m.record = rec
	m.loaded = true
	m.publish(rec)
	return nil
}

// EnsureActive brings the subscription to Active with at least the renewal
// margin left, recreating it after a teardown. Retryable provider errors are
// returned after the record has been moved to RenewalFailed or Expired;
// AuthFailure is returned as is.
func (m *Manager) EnsureActive(ctx context.Context) error {
	return m.do(ctx, "ensure", true)
}

// Refresh is EnsureActive for the scheduler: a torn-down subscription is
// left Deleted. The check happens under the lifecycle lock, so a teardown
// that lands first always wins.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.do(ctx, "refresh", false)
}

// do runs one attempt per key at a time. The attempt is detached from the
// caller that started it, so a caller giving up only abandons its own wait.
func (m *Manager) do(ctx context.Context, key string, recreateDeleted bool) error {
	ch := m.group.DoChan(key, func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.AttemptTimeout)
		defer cancel()
		return nil, m.ensure(attemptCtx, recreateDeleted)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) ensure(ctx context.Context, recreateDeleted bool) error {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "subscription.ensure_active")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	now := m.clock.Now()
	rec := m.record

	if rec != nil && rec.Status == StatusDeleted && !recreateDeleted {
		m.logger.DebugwCtx(ctx, "Subscription torn down, leaving it deleted")
		return nil
	}

	var err error
	switch {
	case rec == nil || rec.ID == "":
		err = m.recreateLocked(ctx, "no subscription")
	case rec.Status == StatusDeleted || rec.Status == StatusExpired || rec.Status == StatusPending:
		err = m.recreateLocked(ctx, "subscription "+string(rec.Status))
	case !now.Before(rec.ExpiresAt):
		m.setStatusLocked(ctx, StatusExpired, "expired before renewal succeeded")
		err = m.recreateLocked(ctx, "subscription expired")
	case rec.Status == StatusRenewalFailed || rec.ExpiresAt.Sub(now) < m.Margin():
		err = m.renewLocked(ctx)
	default:
		metrics.SetSubscriptionExpiry(rec.Remaining(now))
	}

	if err == nil {
		err = m.checkActiveLocked()
	}

	tracing.RecordError(span, err)
	return err
}

// checkActiveLocked holds EnsureActive to its promise: Active with at least
// the margin left. A provider granting a shorter lifetime is retryable.
func (m *Manager) checkActiveLocked() error {
	rec := m.record
	if rec == nil || rec.Status != StatusActive {
		status := "missing"
		if rec != nil {
			status = string(rec.Status)
		}
		return fmt.Errorf("subscription %s after ensure: %w", status, apperrors.ErrTransient)
	}

	remaining := rec.ExpiresAt.Sub(m.clock.Now())
	if remaining < m.Margin() {
		return fmt.Errorf("subscription %s expires in %s, inside the renewal margin %s: %w",
			rec.ID, remaining, m.Margin(), apperrors.ErrTransient)
	}
	return nil
}

func (m *Manager) renewLocked(ctx context.Context) error {
	rec := m.record
	ctx = logging.WithSubscriptionID(ctx, rec.ID)
	target := m.clock.Now().Add(m.opts.Lifetime)

	start := time.Now()
	expiresAt, err := m.provider.RenewSubscription(ctx, rec.ID, target)
	metrics.ObserveSubscriptionOperationDuration("renew", time.Since(start))

	switch apperrors.Classify(err) {
	case apperrors.ClassNone:
		metrics.IncSubscriptionOperation("renew", "success")
		next := rec.clone()
		next.ExpiresAt = expiresAt
		next.Status = StatusActive
		next.LastError = ""
		m.commitLocked(ctx, next)
		m.logger.InfowCtx(ctx, "Renewed subscription", "expires_at", expiresAt)
		return nil

	case apperrors.ClassGone:
		metrics.IncSubscriptionOperation("renew", "gone")
		m.logger.WarnwCtx(ctx, "Provider no longer knows subscription, recreating", "error", err)
		return m.recreateLocked(ctx, "provider reported subscription gone")

	case apperrors.ClassFatal:
		metrics.IncSubscriptionOperation("renew", "auth_failure")
		m.recordErrorLocked(ctx, err)
		return fmt.Errorf("renew subscription %s: %w", rec.ID, err)

	default:
		metrics.IncSubscriptionOperation("renew", "retryable")
		m.setStatusLocked(ctx, StatusRenewalFailed, err.Error())
		return fmt.Errorf("renew subscription %s: %w", rec.ID, err)
	}
}

// recreateLocked drops whatever the provider still holds for this
// resource, then creates a fresh subscription with a new client state.
// On failure the record is left Expired.
func (m *Manager) recreateLocked(ctx context.Context, reason string) error {
	old := m.record
	now := m.clock.Now()

	m.logger.InfowCtx(ctx, "Recreating subscription", "reason", reason)

	if old != nil && old.ID != "" {
		m.bestEffortDelete(ctx, old.ID)
	}

	if m.opts.PurgeOrphans {
		if err := m.purgeOrphansLocked(ctx); err != nil {
			return m.failCreateLocked(ctx, err)
		}
	}

	clientState, err := m.newClientState()
	if err != nil {
		return m.failCreateLocked(ctx, fmt.Errorf("generate client state: %w", err))
	}

	pending := &Record{
		Resource:        m.opts.Resource,
		NotificationURL: m.opts.NotificationURL,
		ChangeType:      m.opts.ChangeType,
		ClientState:     clientState,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.record = pending
	m.publish(pending)

	requested := now.Add(m.opts.Lifetime)
	start := time.Now()
	sub, err := m.provider.CreateSubscription(ctx, graph.SubscriptionRequest{
		Resource:        m.opts.Resource,
		ChangeType:      m.opts.ChangeType,
		NotificationURL: m.opts.NotificationURL,
		ExpiresAt:       requested,
		ClientState:     clientState,
	})
	metrics.ObserveSubscriptionOperationDuration("create", time.Since(start))
	if err != nil {
		metrics.IncSubscriptionOperation("create", apperrors.Classify(err).String())
		return m.failCreateLocked(ctx, err)
	}
	metrics.IncSubscriptionOperation("create", "success")

	active := pending.clone()
	active.ID = sub.ID
	active.ExpiresAt = sub.ExpirationDateTime
	if active.ExpiresAt.IsZero() {
		active.ExpiresAt = requested
	}
	active.Status = StatusActive
	active.UpdatedAt = m.clock.Now()
	m.commitLocked(ctx, active)

	m.logger.InfowCtx(logging.WithSubscriptionID(ctx, active.ID), "Subscription active",
		"resource", active.Resource,
		"expires_at", active.ExpiresAt,
	)
	return nil
}

func (m *Manager) failCreateLocked(ctx context.Context, err error) error {
	now := m.clock.Now()
	failed := &Record{
		Resource:        m.opts.Resource,
		NotificationURL: m.opts.NotificationURL,
		ChangeType:      m.opts.ChangeType,
		Status:          StatusExpired,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastError:       err.Error(),
	}
	if m.record != nil && !m.record.CreatedAt.IsZero() {
		failed.CreatedAt = m.record.CreatedAt
	}
	m.commitLocked(ctx, failed)
	m.logger.ErrorwCtx(ctx, "Failed to create subscription", "error", err)
	return fmt.Errorf("create subscription: %w", err)
}

func (m *Manager) purgeOrphansLocked(ctx context.Context) error {
	subs, err := m.provider.ListSubscriptions(ctx)
	if err != nil {
		if apperrors.IsAuthFailure(err) {
			return err
		}
		m.logger.WarnwCtx(ctx, "Failed to list subscriptions for orphan purge", "error", err)
		return nil
	}

	for _, s := range subs {
		if s.Resource != m.opts.Resource || s.NotificationURL != m.opts.NotificationURL {
			continue
		}
		m.logger.InfowCtx(ctx, "Deleting orphaned subscription", "subscription_id", s.ID)
		m.bestEffortDelete(ctx, s.ID)
	}
	return nil
}

// purgeStaleRecordsLocked removes records left behind by an earlier
// mailbox or folder. Stores that cannot list are skipped.
func (m *Manager) purgeStaleRecordsLocked(ctx context.Context) {
	lister, ok := m.store.(Lister)
	if !ok {
		return
	}

	recs, err := lister.List(ctx)
	if err != nil {
		m.logger.WarnwCtx(ctx, "Failed to list stored subscription records", "error", err)
		return
	}

	for _, rec := range recs {
		if rec.Resource == m.opts.Resource {
			continue
		}
		m.logger.WarnwCtx(ctx, "Discarding record for previous resource",
			"subscription_id", rec.ID,
			"resource", rec.Resource,
		)
		if rec.Status != StatusDeleted {
			m.bestEffortDelete(ctx, rec.ID)
		}
		if err := m.store.Delete(ctx, rec.Resource); err != nil {
			m.logger.WarnwCtx(ctx, "Failed to delete stale record", "resource", rec.Resource, "error", err)
		}
	}
}

func (m *Manager) bestEffortDelete(ctx context.Context, id string) {
	if id == "" {
		return
	}
	err := m.provider.DeleteSubscription(ctx, id)
	switch {
	case err == nil:
		metrics.IncSubscriptionOperation("delete", "success")
	case apperrors.IsSubscriptionGone(err):
		metrics.IncSubscriptionOperation("delete", "gone")
	default:
		metrics.IncSubscriptionOperation("delete", "error")
		m.logger.WarnwCtx(ctx, "Best-effort subscription delete failed",
			"subscription_id", id,
			"error", err,
		)
	}
}

// Teardown deletes the provider subscription and marks the record Deleted.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return err
	}

	if m.record == nil {
		return nil
	}

	m.bestEffortDelete(ctx, m.record.ID)

	deleted := m.record.clone()
	deleted.Status = StatusDeleted
	deleted.UpdatedAt = m.clock.Now()
	m.commitLocked(ctx, deleted)

	m.logger.InfowCtx(ctx, "Subscription torn down", "subscription_id", deleted.ID)
	return nil
}

func (m *Manager) setStatusLocked(ctx context.Context, status Status, lastError string) {
	next := m.record.clone()
	next.Status = status
	next.LastError = lastError
	next.UpdatedAt = m.clock.Now()
	m.commitLocked(ctx, next)
}

func (m *Manager) recordErrorLocked(ctx context.Context, err error) {
	next := m.record.clone()
	next.LastError = err.Error()
	next.UpdatedAt = m.clock.Now()
	m.commitLocked(ctx, next)
}

// commitLocked makes rec current in memory, then persists it. A failed save
// is logged: the in-memory record stays authoritative for this process.
func (m *Manager) commitLocked(ctx context.Context, rec *Record) {
	rec.UpdatedAt = m.clock.Now()
	m.record = rec
	m.publish(rec)

	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.ErrorwCtx(ctx, "Failed to persist subscription record",
			"subscription_id", rec.ID,
			"status", rec.Status,
			"error", err,
		)
	}
}

func (m *Manager) publish(rec *Record) {
	m.snapshot.Store(rec.clone())

	status := ""
	if rec != nil {
		status = string(rec.Status)
	}
	names := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		names[i] = string(s)
	}
	metrics.SetSubscriptionStatus(status, names)
	metrics.SetSubscriptionExpiry(rec.Remaining(m.clock.Now()))
}

// Snapshot returns a copy of the current record, or false when none exists.
func (m *Manager) Snapshot() (Record, bool) {
	rec := m.snapshot.Load()
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// ClientState is the only secret currently accepted on deliveries. It is
// empty while no subscription is live.
func (m *Manager) ClientState() string {
	rec := m.snapshot.Load()
	if !rec.AcceptsNotifications() {
		return ""
	}
	return rec.ClientState
}

// IsLive reports whether a provider subscription currently exists, even if
// its last renewal failed.
func (m *Manager) IsLive() bool {
	return m.snapshot.Load().AcceptsNotifications()
}

// IsTornDown reports whether the record was explicitly deleted.
func (m *Manager) IsTornDown() bool {
	rec := m.snapshot.Load()
	return rec != nil && rec.Status == StatusDeleted
}

// GenerateClientState returns 32 random bytes, URL-safe base64 encoded.
func GenerateClientState() (string, error) {
	buf := make([]byte, constants.ClientStateEntropyLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	if len(state) > constants.MaxClientStateLength {
		return "", errors.New("client state exceeds provider limit")
	}
	return state, nil
}
