package subscription

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/graph"
	"mailpulse/internal/logger"
	"mailpulse/pkg/clock"
	apperrors "mailpulse/pkg/errors"
)

const (
	testResource = "users/ops@example.com/mailFolders('Inbox')/messages"
	testCallback = "https://hooks.example.com/webhook"
)

type fakeProvider struct {
	mu sync.Mutex

	nextID      int
	subs        map[string]graph.Subscription
	deleted     []string
	createCalls int
	renewCalls  int
	listCalls   int

	createErrs []error
	renewErrs  []error
	renewCap   time.Time

	createGate    chan struct{}
	createEntered chan struct{}
	deleteGate    chan struct{}
	deleteEntered chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[string]graph.Subscription)}
}

func (p *fakeProvider) CreateSubscription(ctx context.Context, req graph.SubscriptionRequest) (*graph.Subscription, error) {
	if p.createEntered != nil {
		p.createEntered <- struct{}{}
	}
	if p.createGate != nil {
		select {
		case <-p.createGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.createCalls++
	if len(p.createErrs) > 0 {
		err := p.createErrs[0]
		p.createErrs = p.createErrs[1:]
		return nil, err
	}

	p.nextID++
	sub := graph.Subscription{
		ID:                 fmt.Sprintf("sub-%d", p.nextID),
		Resource:           req.Resource,
		ChangeType:         req.ChangeType,
		NotificationURL:    req.NotificationURL,
		ExpirationDateTime: req.ExpiresAt,
		ClientState:        req.ClientState,
	}
	p.subs[sub.ID] = sub
	return &sub, nil
}

func (p *fakeProvider) RenewSubscription(ctx context.Context, id string, expiresAt time.Time) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.renewCalls++
	if len(p.renewErrs) > 0 {
		err := p.renewErrs[0]
		p.renewErrs = p.renewErrs[1:]
		return time.Time{}, err
	}

	sub, ok := p.subs[id]
	if !ok {
		return time.Time{}, apperrors.ErrSubscriptionGone.WithDetail("id", id)
	}
	if !p.renewCap.IsZero() && expiresAt.After(p.renewCap) {
		expiresAt = p.renewCap
	}
	sub.ExpirationDateTime = expiresAt
	p.subs[id] = sub
	return expiresAt, nil
}

func (p *fakeProvider) DeleteSubscription(ctx context.Context, id string) error {
	if p.deleteEntered != nil {
		p.deleteEntered <- struct{}{}
	}
	if p.deleteGate != nil {
		<-p.deleteGate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.deleted = append(p.deleted, id)
	if _, ok := p.subs[id]; !ok {
		return apperrors.ErrSubscriptionGone
	}
	delete(p.subs, id)
	return nil
}

func (p *fakeProvider) ListSubscriptions(ctx context.Context) ([]graph.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listCalls++
	out := make([]graph.Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	return out, nil
}

func (p *fakeProvider) forget(id string) {
	p.mu.Lock()
	delete(p.subs, id)
	p.mu.Unlock()
}

func (p *fakeProvider) counts() (create, renew int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls, p.renewCalls
}

type harness struct {
	provider *fakeProvider
	store    *MemoryStore
	clock    *clock.Fake
	manager  *Manager
	start    time.Time
}

func newHarness(t *testing.T, purge bool) *harness {
	t.Helper()
	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	h := &harness{
		provider: newFakeProvider(),
		store:    NewMemoryStore(),
		clock:    clock.NewFake(start),
		start:    start,
	}
	h.manager = NewManager(h.provider, h.store, Options{
		Resource:        testResource,
		NotificationURL: testCallback,
		ChangeType:      "created",
		Lifetime:        4230 * time.Minute,
		RenewalMargin:   0.2,
		PurgeOrphans:    purge,
	}, logger.NopLogger(), WithClock(h.clock))
	return h
}

func (h *harness) snapshot(t *testing.T) Record {
	t.Helper()
	rec, ok := h.manager.Snapshot()
	require.True(t, ok)
	return rec
}

func TestEnsureActive_CreatesWhenNoRecord(t *testing.T) {
	h := newHarness(t, false)

	require.NoError(t, h.manager.EnsureActive(context.Background()))

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "sub-1", rec.ID)
	assert.Equal(t, h.start.Add(4230*time.Minute), rec.ExpiresAt)
	assert.NotEmpty(t, rec.ClientState)
	assert.Equal(t, rec.ClientState, h.manager.ClientState())

	stored, err := h.store.Load(context.Background(), testResource)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestEnsureActive_RenewsInsideMargin(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))
	assert.Equal(t, 846*time.Minute, h.manager.Margin())

	h.clock.Advance(3000 * time.Minute)
	require.NoError(t, h.manager.EnsureActive(ctx))
	_, renews := h.provider.counts()
	assert.Equal(t, 0, renews, "1230 minutes left is outside the margin")

	h.clock.Set(h.start.Add(3400 * time.Minute))
	require.NoError(t, h.manager.EnsureActive(ctx))

	creates, renews := h.provider.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, renews)

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, h.start.Add(3400*time.Minute).Add(4230*time.Minute), rec.ExpiresAt)
	assert.GreaterOrEqual(t, rec.ExpiresAt.Sub(h.clock.Now()), h.manager.Margin())
}

func TestEnsureActive_TransientRenewalFailureThenRecovery(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))
	state := h.manager.ClientState()

	h.clock.Advance(3400 * time.Minute)
	h.provider.renewErrs = []error{apperrors.ErrTransient}

	err := h.manager.EnsureActive(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ClassRetryable, apperrors.Classify(err))

	rec := h.snapshot(t)
	assert.Equal(t, StatusRenewalFailed, rec.Status)
	assert.NotEmpty(t, rec.LastError)
	assert.Equal(t, state, h.manager.ClientState(), "subscription still live while renewal is retried")

	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.manager.EnsureActive(ctx))

	rec = h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, "sub-1", rec.ID)
}

func TestEnsureActive_RecreatesAfterExpiry(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))
	oldState := h.manager.ClientState()

	h.clock.Advance(3400 * time.Minute)
	h.provider.renewErrs = []error{apperrors.ErrTransient}
	require.Error(t, h.manager.EnsureActive(ctx))

	h.clock.Set(h.start.Add(4231 * time.Minute))
	require.NoError(t, h.manager.EnsureActive(ctx))

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "sub-2", rec.ID)
	assert.NotEqual(t, oldState, rec.ClientState)
	assert.Contains(t, h.provider.deleted, "sub-1")
}

func TestEnsureActive_GoneRecreatesWithFreshClientState(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))
	oldState := h.manager.ClientState()

	h.provider.forget("sub-1")
	h.clock.Advance(3400 * time.Minute)

	require.NoError(t, h.manager.EnsureActive(ctx))

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "sub-2", rec.ID)
	assert.NotEqual(t, oldState, h.manager.ClientState())
	assert.Equal(t, h.clock.Now().Add(4230*time.Minute), rec.ExpiresAt)
}

func TestEnsureActive_ConcurrentCallersShareOneCreate(t *testing.T) {
	h := newHarness(t, false)
	h.provider.createGate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.manager.EnsureActive(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(h.provider.createGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	creates, _ := h.provider.counts()
	assert.Equal(t, 1, creates)
}

func TestEnsureActive_AbandonedCallerDoesNotCancelSharedAttempt(t *testing.T) {
	h := newHarness(t, false)
	h.provider.createGate = make(chan struct{})
	h.provider.createEntered = make(chan struct{}, 1)

	adminCtx, cancelAdmin := context.WithCancel(context.Background())
	adminErr := make(chan error, 1)
	go func() { adminErr <- h.manager.EnsureActive(adminCtx) }()
	<-h.provider.createEntered

	tickErr := make(chan error, 1)
	go func() { tickErr <- h.manager.EnsureActive(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	cancelAdmin()
	assert.ErrorIs(t, <-adminErr, context.Canceled)

	close(h.provider.createGate)
	require.NoError(t, <-tickErr)

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "sub-1", rec.ID)
	creates, _ := h.provider.counts()
	assert.Equal(t, 1, creates)
}

func TestEnsureActive_RenewsRenewalFailedRecordOutsideMargin(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.provider.subs["existing"] = graph.Subscription{ID: "existing", Resource: testResource}
	require.NoError(t, h.store.Save(ctx, &Record{
		ID:              "existing",
		Resource:        testResource,
		NotificationURL: testCallback,
		ClientState:     "persisted-state",
		Status:          StatusRenewalFailed,
		ExpiresAt:       h.start.Add(2000 * time.Minute),
	}))
	require.NoError(t, h.manager.Start(ctx))

	require.NoError(t, h.manager.EnsureActive(ctx))

	_, renews := h.provider.counts()
	assert.Equal(t, 1, renews)
	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "existing", rec.ID)
}

func TestEnsureActive_ShortGrantIsRetryable(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))

	h.clock.Advance(3400 * time.Minute)
	h.provider.renewCap = h.clock.Now().Add(10 * time.Minute)

	err := h.manager.EnsureActive(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ClassRetryable, apperrors.Classify(err))

	rec := h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status, "the shortened subscription is still live")
	assert.Equal(t, h.provider.renewCap, rec.ExpiresAt)
	assert.NotEmpty(t, h.manager.ClientState())
}

func TestEnsureActive_AuthFailureSurfacesAndNeverLeavesPending(t *testing.T) {
	h := newHarness(t, false)
	h.provider.createErrs = []error{apperrors.ErrAuthFailure}

	err := h.manager.EnsureActive(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))
	assert.Equal(t, apperrors.ClassFatal, apperrors.Classify(err))

	rec := h.snapshot(t)
	assert.Equal(t, StatusExpired, rec.Status)
	assert.Empty(t, h.manager.ClientState())
}

func TestEnsureActive_CreateFailureRetriedNextCall(t *testing.T) {
	h := newHarness(t, false)
	h.provider.createErrs = []error{apperrors.ErrTransient}

	require.Error(t, h.manager.EnsureActive(context.Background()))
	assert.Equal(t, StatusExpired, h.snapshot(t).Status)

	require.NoError(t, h.manager.EnsureActive(context.Background()))
	assert.Equal(t, StatusActive, h.snapshot(t).Status)
}

func TestStart_ResumesPersistedRecord(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.provider.subs["existing"] = graph.Subscription{ID: "existing", Resource: testResource}
	require.NoError(t, h.store.Save(ctx, &Record{
		ID:              "existing",
		Resource:        testResource,
		NotificationURL: testCallback,
		ClientState:     "persisted-state",
		Status:          StatusActive,
		ExpiresAt:       h.start.Add(2000 * time.Minute),
	}))

	require.NoError(t, h.manager.Start(ctx))
	assert.Equal(t, "persisted-state", h.manager.ClientState())

	require.NoError(t, h.manager.EnsureActive(ctx))
	creates, renews := h.provider.counts()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 0, renews)
}

func TestStart_DiscardsRecordForOtherCallback(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.provider.subs["stale"] = graph.Subscription{ID: "stale"}
	require.NoError(t, h.store.Save(ctx, &Record{
		ID:              "stale",
		Resource:        testResource,
		NotificationURL: "https://old-tunnel.example.com/webhook",
		Status:          StatusActive,
		ExpiresAt:       h.start.Add(time.Hour),
	}))

	require.NoError(t, h.manager.Start(ctx))
	assert.Contains(t, h.provider.deleted, "stale")

	require.NoError(t, h.manager.EnsureActive(ctx))
	assert.Equal(t, "sub-1", h.snapshot(t).ID)
}

func TestStart_DiscardsRecordsForPreviousResource(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	oldResource := "users/old@example.com/mailFolders('Inbox')/messages"

	h.provider.subs["old"] = graph.Subscription{ID: "old", Resource: oldResource, NotificationURL: testCallback}
	require.NoError(t, h.store.Save(ctx, &Record{
		ID:              "old",
		Resource:        oldResource,
		NotificationURL: testCallback,
		Status:          StatusActive,
		ExpiresAt:       h.start.Add(time.Hour),
	}))

	require.NoError(t, h.manager.Start(ctx))

	assert.Contains(t, h.provider.deleted, "old")
	_, err := h.store.Load(ctx, oldResource)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, h.manager.EnsureActive(ctx))
	rec := h.snapshot(t)
	assert.Equal(t, testResource, rec.Resource)
	assert.Equal(t, "sub-1", rec.ID)
}

func TestRecreate_PurgesOrphans(t *testing.T) {
	h := newHarness(t, true)
	h.provider.subs["orphan"] = graph.Subscription{ID: "orphan", Resource: testResource, NotificationURL: testCallback}
	h.provider.subs["other-app"] = graph.Subscription{ID: "other-app", Resource: "users/x/messages", NotificationURL: testCallback}

	require.NoError(t, h.manager.EnsureActive(context.Background()))

	assert.Contains(t, h.provider.deleted, "orphan")
	assert.NotContains(t, h.provider.deleted, "other-app")
	assert.Equal(t, 1, h.provider.listCalls)
}

func TestTeardown(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))

	require.NoError(t, h.manager.Teardown(ctx))

	rec := h.snapshot(t)
	assert.Equal(t, StatusDeleted, rec.Status)
	assert.True(t, h.manager.IsTornDown())
	assert.Empty(t, h.manager.ClientState())
	assert.Contains(t, h.provider.deleted, "sub-1")

	stored, err := h.store.Load(ctx, testResource)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, stored.Status)
}

func TestRefresh_LeavesTornDownSubscriptionDeleted(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.manager.EnsureActive(ctx))

	h.provider.deleteGate = make(chan struct{})
	h.provider.deleteEntered = make(chan struct{}, 1)
	teardownErr := make(chan error, 1)
	go func() { teardownErr <- h.manager.Teardown(ctx) }()
	<-h.provider.deleteEntered

	// The teardown holds the lifecycle lock; this refresh queues behind it.
	refreshErr := make(chan error, 1)
	go func() { refreshErr <- h.manager.Refresh(ctx) }()
	time.Sleep(10 * time.Millisecond)

	close(h.provider.deleteGate)
	require.NoError(t, <-teardownErr)
	require.NoError(t, <-refreshErr)

	rec := h.snapshot(t)
	assert.Equal(t, StatusDeleted, rec.Status)
	creates, _ := h.provider.counts()
	assert.Equal(t, 1, creates)

	h.provider.deleteEntered = nil
	require.NoError(t, h.manager.EnsureActive(ctx))
	rec = h.snapshot(t)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "sub-2", rec.ID)
}

func TestGenerateClientState(t *testing.T) {
	a, err := GenerateClientState()
	require.NoError(t, err)
	b, err := GenerateClientState()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}
