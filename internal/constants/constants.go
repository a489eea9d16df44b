package constants

import "time"

const (
	ServiceName     = "mailpulse"
	IndexWorkerName = "mailpulse-index-worker"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultGraphBaseURL   = "https://graph.microsoft.com/v1.0"
	DefaultAuthorityURL   = "https://login.microsoftonline.com"
	GraphDefaultScope     = "https://graph.microsoft.com/.default"
	DefaultMailFolder     = "Inbox"
	DefaultChangeType     = "created"
	DefaultWebhookPath    = "/webhook"
	ValidationTokenParam  = "validationToken"
	MaxClientStateLength  = 128
	ClientStateEntropyLen = 32
)

// Provider ceiling for mail message subscriptions. Requests never ask for
// a longer lifetime.
const (
	MaxSubscriptionLifetime     = 4230 * time.Minute
	DefaultSubscriptionLifetime = MaxSubscriptionLifetime
	DefaultRenewalMargin        = 0.2

	// While no subscription is live the scheduler retries on this schedule
	// instead of waiting a full tick.
	DefaultRetryInterval    = 15 * time.Second
	DefaultRetryMaxInterval = 5 * time.Minute
)

const (
	CacheKeyPrefixLedger       = "ledger:"
	CacheKeyPrefixSubscription = "subscription:"
)

const (
	// The provider retries undelivered notifications for up to four hours.
	ProviderRedeliveryWindow = 4 * time.Hour
	DefaultLedgerRetention   = 6 * time.Hour
	DefaultDedupBucket       = 10 * time.Minute
	DefaultWorkers           = 4
	DefaultQueueSize         = 256
	DefaultDrainTimeout      = 15 * time.Second
	DefaultFetchTimeout      = 20 * time.Second
)

const (
	DefaultDocumentTopic = "email_documents"
	DefaultMongoDBName   = "mailpulse"
	DefaultSQLitePath    = "data/mailpulse.db"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongoDB  = "mongodb"
	StoreMemory   = "memory"
)

const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

const (
	IndexingModePostgres = "postgres"
	IndexingModeKafka    = "kafka"
)
