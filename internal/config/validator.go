package config

import (
	"fmt"
	"net/url"
	"strings"

	"mailpulse/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateGraph(cfg.Graph) },
		func() error { return validateSubscription(cfg.Subscription) },
		func() error { return validateIngestion(cfg.Ingestion) },
		func() error { return validateIndexing(cfg.Indexing) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateBackends(cfg) },
		func() error { return validateTimeouts(cfg) },
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateGraph(cfg GraphConfig) error {
	required := []struct {
		field string
		value string
	}{
		{"graph.tenant_id", cfg.TenantID},
		{"graph.client_id", cfg.ClientID},
		{"graph.client_secret", cfg.ClientSecret},
		{"graph.mailbox", cfg.Mailbox},
		{"graph.folder", cfg.Folder},
		{"graph.callback_url", cfg.CallbackURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "value is required"}
		}
	}

	for field, raw := range map[string]string{
		"graph.callback_url":  cfg.CallbackURL,
		"graph.base_url":      cfg.BaseURL,
		"graph.authority_url": cfg.AuthorityURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
			}
		}
	}

	if cfg.RequestTimeout <= 0 {
		return &ValidationError{
			Field:   "graph.request_timeout",
			Message: "request timeout must be positive",
		}
	}

	return nil
}

func validateSubscription(cfg SubscriptionConfig) error {
	if cfg.Lifetime <= 0 {
		return &ValidationError{
			Field:   "subscription.lifetime",
			Message: "lifetime must be positive",
		}
	}

	if cfg.Lifetime > constants.MaxSubscriptionLifetime {
		return &ValidationError{
			Field: "subscription.lifetime",
			Message: fmt.Sprintf("lifetime %s exceeds provider maximum %s",
				cfg.Lifetime, constants.MaxSubscriptionLifetime),
		}
	}

	if cfg.RenewalMargin <= 0 || cfg.RenewalMargin >= 1 {
		return &ValidationError{
			Field:   "subscription.renewal_margin",
			Message: fmt.Sprintf("renewal margin must be in (0, 1), got %v", cfg.RenewalMargin),
		}
	}

	if cfg.TickInterval < 0 {
		return &ValidationError{
			Field:   "subscription.tick_interval",
			Message: "tick interval must be non-negative",
		}
	}

	if cfg.Tick() >= cfg.Margin() {
		return &ValidationError{
			Field: "subscription.tick_interval",
			Message: fmt.Sprintf("tick interval %s must be shorter than the renewal margin %s",
				cfg.Tick(), cfg.Margin()),
		}
	}

	if cfg.RetryInterval <= 0 {
		return &ValidationError{
			Field:   "subscription.retry_interval",
			Message: "retry interval must be positive",
		}
	}

	if cfg.RetryMaxInterval < cfg.RetryInterval {
		return &ValidationError{
			Field: "subscription.retry_max_interval",
			Message: fmt.Sprintf("retry max interval %s must not be shorter than retry interval %s",
				cfg.RetryMaxInterval, cfg.RetryInterval),
		}
	}

	if cfg.ChangeType == "" {
		return &ValidationError{
			Field:   "subscription.change_type",
			Message: "change type is required",
		}
	}

	switch cfg.Store {
	case constants.StoreSQLite, constants.StorePostgres, constants.StoreRedis,
		constants.StoreMongoDB, constants.StoreMemory:
	default:
		return &ValidationError{
			Field:   "subscription.store",
			Message: fmt.Sprintf("unknown store: %s (supported: sqlite, postgres, redis, mongodb, memory)", cfg.Store),
		}
	}

	return nil
}

func validateIngestion(cfg IngestionConfig) error {
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		return &ValidationError{
			Field:   "ingestion.webhook_path",
			Message: "webhook path must start with /",
		}
	}

	switch cfg.Ledger {
	case constants.LedgerMemory, constants.LedgerRedis:
	default:
		return &ValidationError{
			Field:   "ingestion.ledger",
			Message: fmt.Sprintf("unknown ledger: %s (supported: memory, redis)", cfg.Ledger),
		}
	}

	if cfg.LedgerRetention <= constants.ProviderRedeliveryWindow {
		return &ValidationError{
			Field: "ingestion.ledger_retention",
			Message: fmt.Sprintf("retention %s must exceed the provider redelivery window %s",
				cfg.LedgerRetention, constants.ProviderRedeliveryWindow),
		}
	}

	if cfg.DedupBucket <= 0 || cfg.DedupBucket >= cfg.LedgerRetention {
		return &ValidationError{
			Field:   "ingestion.dedup_bucket",
			Message: "dedup bucket must be positive and shorter than the ledger retention",
		}
	}

	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "ingestion.workers",
			Message: "at least one worker is required",
		}
	}

	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   "ingestion.queue_size",
			Message: "queue size must be positive",
		}
	}

	if cfg.DrainTimeout <= 0 || cfg.FetchTimeout <= 0 {
		return &ValidationError{
			Field:   "ingestion.drain_timeout",
			Message: "drain and fetch timeouts must be positive",
		}
	}

	switch strings.ToLower(cfg.OnLedgerError) {
	case constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "ingestion.on_ledger_error",
			Message: fmt.Sprintf("invalid on_ledger_error value: %s (valid: allow, deny)", cfg.OnLedgerError),
		}
	}

	return nil
}

func validateIndexing(cfg IndexingConfig) error {
	switch cfg.Mode {
	case constants.IndexingModePostgres:
		if cfg.Embedding.URL == "" {
			return &ValidationError{
				Field:   "indexing.embedding.url",
				Message: "embedding endpoint is required for postgres indexing",
			}
		}
	case constants.IndexingModeKafka:
		if cfg.Topic == "" {
			return &ValidationError{
				Field:   "indexing.topic",
				Message: "topic is required for kafka indexing",
			}
		}
	default:
		return &ValidationError{
			Field:   "indexing.mode",
			Message: fmt.Sprintf("unknown indexing mode: %s (supported: postgres, kafka)", cfg.Mode),
		}
	}

	if cfg.ChunkSize <= 0 {
		return &ValidationError{
			Field:   "indexing.chunk_size",
			Message: "chunk size must be positive",
		}
	}

	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return &ValidationError{
			Field:   "indexing.chunk_overlap",
			Message: "chunk overlap must be non-negative and smaller than chunk size",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

// validateBackends checks that every backend selected by a mode switch has
// its connection settings present.
func validateBackends(cfg *Config) error {
	needsPostgres := cfg.Subscription.Store == constants.StorePostgres ||
		cfg.Indexing.Mode == constants.IndexingModePostgres
	needsRedis := cfg.Subscription.Store == constants.StoreRedis ||
		cfg.Ingestion.Ledger == constants.LedgerRedis

	if needsPostgres && cfg.Database.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required by the selected store or indexing mode",
		}
	}

	if needsRedis && cfg.Database.Redis.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required by the selected store or ledger",
		}
	}

	if cfg.Subscription.Store == constants.StoreMongoDB && cfg.Database.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required by the selected store",
		}
	}

	if cfg.Subscription.Store == constants.StoreSQLite && cfg.Database.SQLite.Path == "" {
		return &ValidationError{
			Field:   "database.sqlite.path",
			Message: "SQLite path is required by the selected store",
		}
	}

	if cfg.Indexing.Mode == constants.IndexingModeKafka {
		return validateKafka(cfg.Broker.Kafka)
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.DB < 0 {
		return &ValidationError{
			Field:   "database.redis.db",
			Message: "db index must be non-negative",
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

// validateTimeouts checks that a single provider call fits inside the
// budget of the scheduler check that issues it.
func validateTimeouts(cfg *Config) error {
	if cfg.Graph.RequestTimeout >= cfg.Subscription.Tick() {
		return &ValidationError{
			Field: "graph.request_timeout",
			Message: fmt.Sprintf("request timeout %s must be shorter than the tick interval %s",
				cfg.Graph.RequestTimeout, cfg.Subscription.Tick()),
		}
	}
	return nil
}
