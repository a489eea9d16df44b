package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Admin          AdminConfig          `mapstructure:"admin"`
	Graph          GraphConfig          `mapstructure:"graph"`
	Subscription   SubscriptionConfig   `mapstructure:"subscription"`
	Ingestion      IngestionConfig      `mapstructure:"ingestion"`
	Indexing       IndexingConfig       `mapstructure:"indexing"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type AdminConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

// GraphConfig holds the provider identity and the mailbox being watched.
type GraphConfig struct {
	TenantID       string        `mapstructure:"tenant_id"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Mailbox        string        `mapstructure:"mailbox"`
	Folder         string        `mapstructure:"folder"`
	CallbackURL    string        `mapstructure:"callback_url"`
	BaseURL        string        `mapstructure:"base_url"`
	AuthorityURL   string        `mapstructure:"authority_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Resource is the provider resource path for the watched folder.
func (g GraphConfig) Resource() string {
	return fmt.Sprintf("users/%s/mailFolders('%s')/messages", g.Mailbox, g.Folder)
}

// TokenURL is the OAuth2 client-credentials endpoint for the tenant.
func (g GraphConfig) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", g.AuthorityURL, g.TenantID)
}

type SubscriptionConfig struct {
	Lifetime         time.Duration `mapstructure:"lifetime"`
	RenewalMargin    float64       `mapstructure:"renewal_margin"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	RetryMaxInterval time.Duration `mapstructure:"retry_max_interval"`
	ChangeType       string        `mapstructure:"change_type"`
	Store            string        `mapstructure:"store"`
	PurgeOrphans     bool          `mapstructure:"purge_orphans"`
	DeleteOnShutdown bool          `mapstructure:"delete_on_shutdown"`
}

// Margin is the remaining lifetime under which a renewal is attempted.
func (s SubscriptionConfig) Margin() time.Duration {
	return time.Duration(float64(s.Lifetime) * s.RenewalMargin)
}

// Tick returns the configured scheduler interval, defaulting to half the
// margin so several attempts fit before expiry.
func (s SubscriptionConfig) Tick() time.Duration {
	if s.TickInterval > 0 {
		return s.TickInterval
	}
	return s.Margin() / 2
}

type IngestionConfig struct {
	WebhookPath      string        `mapstructure:"webhook_path"`
	Ledger           string        `mapstructure:"ledger"`
	LedgerRetention  time.Duration `mapstructure:"ledger_retention"`
	DedupBucket      time.Duration `mapstructure:"dedup_bucket"`
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	OnLedgerError    string        `mapstructure:"on_ledger_error"`
	FilterExpression string        `mapstructure:"filter_expression"`
}

type IndexingConfig struct {
	Mode         string          `mapstructure:"mode"`
	ChunkSize    int             `mapstructure:"chunk_size"`
	ChunkOverlap int             `mapstructure:"chunk_overlap"`
	Topic        string          `mapstructure:"topic"`
	Embedding    EmbeddingConfig `mapstructure:"embedding"`
}

type EmbeddingConfig struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers  []string    `mapstructure:"brokers"`
	GroupID  string      `mapstructure:"group_id"`
	DLQTopic string      `mapstructure:"dlq_topic"`
	Retry    RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
