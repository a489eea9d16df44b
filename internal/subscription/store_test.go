package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/testinfra"
	"mailpulse/pkg/bootstrap"
	apperrors "mailpulse/pkg/errors"
)

func sampleRecord(resource string) *Record {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return &Record{
		ID:              "sub-1",
		Resource:        resource,
		ClientState:     "state-abc",
		NotificationURL: "https://hooks.example.com/webhook",
		ChangeType:      "created",
		Status:          StatusActive,
		ExpiresAt:       now.Add(70 * time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	resource := "users/u-1/mailFolders('Inbox')/messages"

	_, err := store.Load(ctx, resource)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	rec := sampleRecord(resource)
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.ClientState, got.ClientState)
	assert.Equal(t, rec.NotificationURL, got.NotificationURL)
	assert.Equal(t, StatusActive, got.Status)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires_at %s != %s", rec.ExpiresAt, got.ExpiresAt)

	rec.ID = "sub-2"
	rec.Status = StatusRenewalFailed
	rec.LastError = "provider unavailable"
	rec.ExpiresAt = rec.ExpiresAt.Add(time.Hour)
	require.NoError(t, store.Save(ctx, rec))

	got, err = store.Load(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, "sub-2", got.ID)
	assert.Equal(t, StatusRenewalFailed, got.Status)
	assert.Equal(t, "provider unavailable", got.LastError)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	if lister, ok := store.(Lister); ok {
		records, err := lister.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, resource, records[0].Resource)
	}

	require.NoError(t, store.Delete(ctx, resource))
	_, err = store.Load(ctx, resource)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Delete(ctx, resource))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := bootstrap.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exerciseStore(t, NewSQLiteStore(db))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/subs.db"

	db, err := bootstrap.OpenSQLite(ctx, path)
	require.NoError(t, err)
	rec := sampleRecord("users/u-2/mailFolders('Inbox')/messages")
	require.NoError(t, NewSQLiteStore(db).Save(ctx, rec))
	require.NoError(t, db.Close())

	db, err = bootstrap.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	got, err := NewSQLiteStore(db).Load(ctx, rec.Resource)
	require.NoError(t, err)
	assert.Equal(t, rec.ClientState, got.ClientState)
}

func TestPostgresStore(t *testing.T) {
	exerciseStore(t, NewPostgresStore(testinfra.Postgres(t)))
}

func TestRedisStore(t *testing.T) {
	exerciseStore(t, NewRedisStore(testinfra.Redis(t)))
}

func TestMongoStore(t *testing.T) {
	exerciseStore(t, NewMongoStore(testinfra.Mongo(t)))
}
