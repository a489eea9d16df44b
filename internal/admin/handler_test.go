package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/logger"
	"mailpulse/internal/subscription"
	"mailpulse/pkg/clock"
	apperrors "mailpulse/pkg/errors"
)

type fakeLifecycle struct {
	record    *subscription.Record
	ensureErr error
	ensured   int
	tornDown  int
}

func (f *fakeLifecycle) Snapshot() (subscription.Record, bool) {
	if f.record == nil {
		return subscription.Record{}, false
	}
	return *f.record, true
}

func (f *fakeLifecycle) EnsureActive(ctx context.Context) error {
	f.ensured++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if f.record == nil {
		f.record = &subscription.Record{ID: "sub-new", Status: subscription.StatusActive}
	}
	return nil
}

func (f *fakeLifecycle) Teardown(ctx context.Context) error {
	f.tornDown++
	if f.record != nil {
		f.record.Status = subscription.StatusDeleted
	}
	return nil
}

var now = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newRouter(lc *fakeLifecycle) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(lc, clock.NewFake(now), logger.NopLogger()).RegisterRoutes(router)
	return router
}

func do(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGetSubscription_HidesClientState(t *testing.T) {
	lc := &fakeLifecycle{record: &subscription.Record{
		ID:          "sub-1",
		Resource:    "users/a/mailFolders('Inbox')/messages",
		ClientState: "secret-value",
		Status:      subscription.StatusActive,
		ExpiresAt:   now.Add(time.Hour),
	}}

	w := do(newRouter(lc), http.MethodGet, "/api/v1/subscription")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-value")

	var resp SubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sub-1", resp.ID)
	assert.Equal(t, "Active", resp.Status)
	assert.Equal(t, int64(3600), resp.RemainingSeconds)
}

func TestGetSubscription_NotFound(t *testing.T) {
	w := do(newRouter(&fakeLifecycle{}), http.MethodGet, "/api/v1/subscription")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestEnsureSubscription(t *testing.T) {
	lc := &fakeLifecycle{}
	w := do(newRouter(lc), http.MethodPost, "/api/v1/subscription/ensure")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, lc.ensured)
	assert.Contains(t, w.Body.String(), "sub-new")
}

func TestEnsureSubscription_AuthFailure(t *testing.T) {
	lc := &fakeLifecycle{ensureErr: apperrors.ErrAuthFailure}
	w := do(newRouter(lc), http.MethodPost, "/api/v1/subscription/ensure")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_FAILURE")
}

func TestDeleteSubscription(t *testing.T) {
	lc := &fakeLifecycle{record: &subscription.Record{ID: "sub-1", Status: subscription.StatusActive}}
	w := do(newRouter(lc), http.MethodDelete, "/api/v1/subscription")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, lc.tornDown)
	assert.Contains(t, w.Body.String(), `"status":"Deleted"`)
}
