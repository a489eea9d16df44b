package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mailpulse/internal/subscription"
	"mailpulse/pkg/clock"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type degradedError struct {
	err error
}

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

// Degraded marks a check failure that leaves the service usable.
func Degraded(err error) error {
	return &degradedError{err: err}
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	overall := StatusHealthy

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}

		var degraded *degradedError
		switch {
		case err == nil:
		case errors.As(err, &degraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			overall = StatusUnhealthy
		}

		results[checker.Name()] = result
	}

	return Health{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// SQLChecker pings a sqlx handle. The name distinguishes the engine.
type SQLChecker struct {
	name string
	db   *sqlx.DB
}

func NewSQLChecker(name string, db *sqlx.DB) *SQLChecker {
	return &SQLChecker{name: name, db: db}
}

func (c *SQLChecker) Name() string {
	return c.name
}

func (c *SQLChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

type MongoDBChecker struct {
	client *mongo.Client
}

func NewMongoDBChecker(client *mongo.Client) *MongoDBChecker {
	return &MongoDBChecker{client: client}
}

func (c *MongoDBChecker) Name() string {
	return "mongodb"
}

func (c *MongoDBChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

type Snapshotter interface {
	Snapshot() (subscription.Record, bool)
}

// SubscriptionChecker reports degraded while notifications cannot be
// accepted and unhealthy once the subscription has lapsed.
type SubscriptionChecker struct {
	source Snapshotter
	clock  clock.Clock
}

func NewSubscriptionChecker(source Snapshotter, clk clock.Clock) *SubscriptionChecker {
	return &SubscriptionChecker{source: source, clock: clk}
}

func (c *SubscriptionChecker) Name() string {
	return "subscription"
}

func (c *SubscriptionChecker) Check(ctx context.Context) error {
	rec, ok := c.source.Snapshot()
	if !ok {
		return Degraded(errors.New("no subscription yet"))
	}

	switch rec.Status {
	case subscription.StatusActive:
		return nil
	case subscription.StatusRenewalFailed:
		if rec.Remaining(c.clock.Now()) > 0 {
			return Degraded(fmt.Errorf("renewal failing: %s", rec.LastError))
		}
		return fmt.Errorf("subscription expired after failed renewals: %s", rec.LastError)
	case subscription.StatusDeleted:
		return Degraded(errors.New("subscription torn down"))
	case subscription.StatusPending:
		return Degraded(errors.New("subscription pending"))
	default:
		return fmt.Errorf("subscription %s: %s", rec.Status, rec.LastError)
	}
}
