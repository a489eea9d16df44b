package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
)

type failingRepository struct{}

func (failingRepository) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRepository) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingRepository) GetCacheSize(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func testIngestionConfig(onError string) config.IngestionConfig {
	return config.IngestionConfig{
		LedgerRetention: constants.DefaultLedgerRetention,
		OnLedgerError:   onError,
	}
}

func TestService_ClaimOnce(t *testing.T) {
	svc := NewService(NewMemoryRepository(), testIngestionConfig(constants.FallbackAllow), logger.NopLogger())
	ctx := context.Background()

	claimed, err := svc.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = svc.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = svc.Claim(ctx, "n-2")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestService_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	svc := NewService(NewMemoryRepository(), testIngestionConfig(constants.FallbackAllow), logger.NopLogger())

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := svc.Claim(context.Background(), "same")
			if err == nil && claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestService_ReleaseAllowsReclaim(t *testing.T) {
	svc := NewService(NewMemoryRepository(), testIngestionConfig(constants.FallbackAllow), logger.NopLogger())
	ctx := context.Background()

	claimed, err := svc.Claim(ctx, "n-1")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, svc.Release(ctx, "n-1"))

	claimed, err = svc.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestService_StoreErrorPolicy(t *testing.T) {
	ctx := context.Background()

	allow := NewService(failingRepository{}, testIngestionConfig(constants.FallbackAllow), logger.NopLogger())
	claimed, err := allow.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	deny := NewService(failingRepository{}, testIngestionConfig(constants.FallbackDeny), logger.NopLogger())
	claimed, err = deny.Claim(ctx, "n-1")
	require.Error(t, err)
	assert.False(t, claimed)
}

func TestMemoryRepository_Expiry(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "ledger:a", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	size, err := repo.GetCacheSize(ctx, "ledger:")
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	now = now.Add(59 * time.Minute)
	ok, err = repo.SetNX(ctx, "ledger:a", 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, repo.Sweep())

	ok, err = repo.SetNX(ctx, "ledger:a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_Identity(t *testing.T) {
	h := NewHasher(10 * time.Minute)
	base := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)

	key := Key{
		SubscriptionID: "sub-1",
		ResourceID:     "AAMk-1",
		Resource:       "users/u/messages/AAMk-1",
		ChangeType:     "created",
		ReceivedAt:     base,
	}

	redelivered := key
	redelivered.ReceivedAt = base.Add(5 * time.Minute)
	assert.Equal(t, h.Identity(key), h.Identity(redelivered))

	otherMessage := key
	otherMessage.ResourceID = "AAMk-2"
	assert.NotEqual(t, h.Identity(key), h.Identity(otherMessage))

	withID := key
	withID.NotificationID = "provider-id"
	assert.Equal(t, "id:provider-id", h.Identity(withID))

	noResourceID := key
	noResourceID.ResourceID = ""
	assert.NotEqual(t, h.Identity(key), h.Identity(noResourceID))
}
