package subscription

import (
	"fmt"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/pkg/bootstrap"
)

// NewStore returns the store selected by subscription.store, backed by the
// matching connection in conns.
func NewStore(cfg *config.Config, conns *bootstrap.Connections) (Store, error) {
	switch cfg.Subscription.Store {
	case constants.StoreMemory:
		return NewMemoryStore(), nil
	case constants.StoreSQLite:
		if conns == nil || conns.SQLite == nil {
			return nil, fmt.Errorf("sqlite store selected but no sqlite connection")
		}
		return NewSQLiteStore(conns.SQLite), nil
	case constants.StorePostgres:
		if conns == nil || conns.Postgres == nil {
			return nil, fmt.Errorf("postgres store selected but no postgres connection")
		}
		return NewPostgresStore(conns.Postgres), nil
	case constants.StoreRedis:
		if conns == nil || conns.Redis == nil {
			return nil, fmt.Errorf("redis store selected but no redis connection")
		}
		return NewRedisStore(conns.Redis), nil
	case constants.StoreMongoDB:
		if conns == nil || conns.Mongo == nil {
			return nil, fmt.Errorf("mongodb store selected but no mongodb connection")
		}
		return NewMongoStore(conns.Mongo.Database(cfg.Database.MongoDB.Database)), nil
	default:
		return nil, fmt.Errorf("unsupported subscription store: %s", cfg.Subscription.Store)
	}
}
