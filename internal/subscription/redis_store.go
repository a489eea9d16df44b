package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailpulse/internal/constants"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
)

// RedisStore keeps each record as a JSON document under
// subscription:<resource>.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(resource string) string {
	return constants.CacheKeyPrefixSubscription + resource
}

func (s *RedisStore) Load(ctx context.Context, resource string) (*Record, error) {
	start := time.Now()

	data, err := s.client.Get(ctx, redisKey(resource)).Bytes()
	observeRedis("load", start, err)
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound.WithDetail("resource", resource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	start := time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	err = s.client.Set(ctx, redisKey(rec.Resource), data, 0).Err()
	observeRedis("save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, resource string) error {
	start := time.Now()

	err := s.client.Del(ctx, redisKey(resource)).Err()
	observeRedis("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	start := time.Now()

	var records []Record
	iter := s.client.Scan(ctx, 0, constants.CacheKeyPrefixSubscription+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			observeRedis("list", start, err)
			return nil, fmt.Errorf("failed to read %s: %w", iter.Val(), err)
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Val(), err)
		}
		records = append(records, rec)
	}
	err := iter.Err()
	observeRedis("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return records, nil
}

func observeRedis(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, constants.StoreRedis, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, constants.StoreRedis, operation, time.Since(start))
}
