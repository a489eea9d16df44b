package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mailpulse/internal/constants"
)

// LoadConfig reads an optional YAML file, then applies environment
// variables (including those from a local .env file) on top of it.
func LoadConfig(configFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	viper.Reset()

	viper.SetConfigType("yaml")
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func setDefaults() {
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.rate_limit.enabled", true)
	viper.SetDefault("admin.rate_limit.rps", 5)
	viper.SetDefault("admin.rate_limit.burst", 10)
	viper.SetDefault("admin.rate_limit.cleanup_interval", 300)
	viper.SetDefault("admin.rate_limit.max_age", 600)

	viper.SetDefault("graph.folder", constants.DefaultMailFolder)
	viper.SetDefault("graph.base_url", constants.DefaultGraphBaseURL)
	viper.SetDefault("graph.authority_url", constants.DefaultAuthorityURL)
	viper.SetDefault("graph.request_timeout", constants.DefaultHTTPTimeout.String())

	viper.SetDefault("subscription.lifetime", constants.DefaultSubscriptionLifetime.String())
	viper.SetDefault("subscription.renewal_margin", constants.DefaultRenewalMargin)
	viper.SetDefault("subscription.change_type", constants.DefaultChangeType)
	viper.SetDefault("subscription.retry_interval", constants.DefaultRetryInterval.String())
	viper.SetDefault("subscription.retry_max_interval", constants.DefaultRetryMaxInterval.String())
	viper.SetDefault("subscription.store", constants.StoreSQLite)
	viper.SetDefault("subscription.purge_orphans", true)

	viper.SetDefault("ingestion.webhook_path", constants.DefaultWebhookPath)
	viper.SetDefault("ingestion.ledger", constants.LedgerMemory)
	viper.SetDefault("ingestion.ledger_retention", constants.DefaultLedgerRetention.String())
	viper.SetDefault("ingestion.dedup_bucket", constants.DefaultDedupBucket.String())
	viper.SetDefault("ingestion.workers", constants.DefaultWorkers)
	viper.SetDefault("ingestion.queue_size", constants.DefaultQueueSize)
	viper.SetDefault("ingestion.drain_timeout", constants.DefaultDrainTimeout.String())
	viper.SetDefault("ingestion.fetch_timeout", constants.DefaultFetchTimeout.String())
	viper.SetDefault("ingestion.on_ledger_error", constants.FallbackAllow)

	viper.SetDefault("indexing.mode", constants.IndexingModePostgres)
	viper.SetDefault("indexing.chunk_size", constants.DefaultChunkSize)
	viper.SetDefault("indexing.chunk_overlap", constants.DefaultChunkOverlap)
	viper.SetDefault("indexing.topic", constants.DefaultDocumentTopic)
	viper.SetDefault("indexing.embedding.batch_size", 16)
	viper.SetDefault("indexing.embedding.timeout", "30s")

	viper.SetDefault("database.sqlite.path", constants.DefaultSQLitePath)
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.postgres.run_migrations", true)
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func bindEnvVariables() {
	// Names used by the original deployment scripts.
	viper.BindEnv("graph.tenant_id", "GRAPH_TENANT_ID", "AZURE_TENANT_ID")
	viper.BindEnv("graph.client_id", "GRAPH_CLIENT_ID", "AZURE_CLIENT_ID")
	viper.BindEnv("graph.client_secret", "GRAPH_CLIENT_SECRET", "AZURE_CLIENT_SECRET")
	viper.BindEnv("graph.mailbox", "GRAPH_MAILBOX", "TARGET_USER_ID")
	viper.BindEnv("graph.callback_url", "GRAPH_CALLBACK_URL", "WEBHOOK_CALLBACK_URL")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")
	viper.BindEnv("database.sqlite.path", "DATABASE_SQLITE_PATH")

	viper.BindEnv("indexing.embedding.api_key", "INDEXING_EMBEDDING_API_KEY")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
