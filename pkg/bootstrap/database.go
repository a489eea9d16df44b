package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	"mailpulse/pkg/migrations"
)

// Connections holds every backend opened for the current configuration.
// Fields are nil for backends the configuration does not use.
type Connections struct {
	Redis    *redis.Client
	Postgres *sqlx.DB
	Mongo    *mongo.Client
	SQLite   *sqlx.DB
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Connect opens the backends required by the subscription store, the
// ledger and the indexing sink. A failure closes anything already opened.
func (dc *DatabaseConnector) Connect(ctx context.Context) (*Connections, error) {
	conns := &Connections{}
	cfg := dc.Config

	fail := func(err error) (*Connections, error) {
		dc.ShutdownDatabases(ctx, conns)
		return nil, err
	}

	if cfg.Subscription.Store == constants.StoreRedis || cfg.Ingestion.Ledger == constants.LedgerRedis {
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			return fail(err)
		}
		conns.Redis = rdb
	}

	if cfg.Subscription.Store == constants.StorePostgres || cfg.Indexing.Mode == constants.IndexingModePostgres {
		db, err := dc.InitPostgreSQL(ctx)
		if err != nil {
			return fail(err)
		}
		conns.Postgres = db
	}

	if cfg.Subscription.Store == constants.StoreMongoDB {
		client, err := dc.InitMongoDB(ctx)
		if err != nil {
			return fail(err)
		}
		conns.Mongo = client
	}

	if cfg.Subscription.Store == constants.StoreSQLite {
		db, err := dc.InitSQLite(ctx)
		if err != nil {
			return fail(err)
		}
		conns.SQLite = db
	}

	return conns, nil
}

// ConnectStore opens only the backend holding subscription records, for
// commands that never touch the ledger or the index.
func (dc *DatabaseConnector) ConnectStore(ctx context.Context) (*Connections, error) {
	conns := &Connections{}
	var err error

	switch dc.Config.Subscription.Store {
	case constants.StoreRedis:
		conns.Redis, err = dc.InitRedis(ctx)
	case constants.StorePostgres:
		conns.Postgres, err = dc.InitPostgreSQL(ctx)
	case constants.StoreMongoDB:
		conns.Mongo, err = dc.InitMongoDB(ctx)
	case constants.StoreSQLite:
		conns.SQLite, err = dc.InitSQLite(ctx)
	}
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sqlx.DB, error) {
	pg := dc.Config.Database.Postgres
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.User,
		pg.Password,
		pg.Host,
		pg.Port,
		pg.DBName,
		pg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if pg.RunMigrations {
		if err := migrations.RunPostgres(db.DB); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := mongoClient.Database(dc.Config.Database.MongoDB.Database)
	if err := migrations.EnsureMongoSubscriptions(ctx, db); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, err
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

// InitSQLite opens the single-writer SQLite file used for the local
// subscription store.
func (dc *DatabaseConnector) InitSQLite(ctx context.Context) (*sqlx.DB, error) {
	path := dc.Config.Database.SQLite.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	dc.Logger.Info("SQLite opened successfully")
	return db, nil
}

// OpenSQLite opens path, enables WAL and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := migrations.ApplySQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, conns *Connections) []error {
	var errs []error
	if conns == nil {
		return nil
	}

	if conns.Redis != nil {
		if err := conns.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if conns.Postgres != nil {
		if err := conns.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if conns.Mongo != nil {
		if err := conns.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	if conns.SQLite != nil {
		if err := conns.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite close error: %w", err))
		}
	}

	return errs
}
