package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubscriptionOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_operations_total",
			Help: "Total number of subscription lifecycle operations (count)",
		},
		[]string{"operation", "status"},
	)

	SubscriptionOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscription_operation_duration_ms",
			Help:    "Duration of provider subscription calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation"},
	)

	SubscriptionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscription_status",
			Help: "Current subscription status (1 for the active status label, 0 otherwise)",
		},
		[]string{"status"},
	)

	SubscriptionExpirySeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscription_expiry_seconds",
			Help: "Seconds until the current subscription expires (seconds)",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications received by outcome (count)",
		},
		[]string{"outcome"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of webhook requests by kind and status code (count)",
		},
		[]string{"kind", "code"},
	)

	IngestionProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestion_processing_duration_ms",
			Help:    "Fetch, extract and index duration per notification in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	LedgerCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_cache_size",
			Help: "Approximate number of identities held by the seen-notification ledger (count)",
		},
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_ms",
			Help:    "Duration of ledger claims in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	IndexedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexed_documents_total",
			Help: "Total number of documents handed to the indexing pipeline (count)",
		},
		[]string{"sink", "status"},
	)

	IndexedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "indexed_chunks_total",
			Help: "Total number of chunks written to the vector store (count)",
		},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_request_duration_ms",
			Help:    "Duration of embedding requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	WorkerQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_size",
			Help: "Current number of notifications waiting for a worker (count)",
		},
	)

	WorkerQueueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_queue_wait_duration_ms",
			Help:    "Duration notifications wait in queue before processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
)

var (
	subscriptionOnce   sync.Once
	ingestionOnce      sync.Once
	indexingOnce       sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	adminOnce          sync.Once
	fallbackOnce       sync.Once
)

func RegisterSubscriptionMetrics() {
	subscriptionOnce.Do(func() {
		prometheus.MustRegister(SubscriptionOperationsTotal)
		prometheus.MustRegister(SubscriptionOperationDuration)
		prometheus.MustRegister(SubscriptionStatus)
		prometheus.MustRegister(SubscriptionExpirySeconds)
	})
}

func RegisterIngestionMetrics() {
	ingestionOnce.Do(func() {
		prometheus.MustRegister(NotificationsTotal)
		prometheus.MustRegister(WebhookRequestsTotal)
		prometheus.MustRegister(IngestionProcessingDuration)
		prometheus.MustRegister(LedgerCacheSize)
		prometheus.MustRegister(LedgerOperationDuration)
		prometheus.MustRegister(WorkerQueueSize)
		prometheus.MustRegister(WorkerQueueWaitDuration)
	})
	registerFallbackUsageTotalOnce()
}

func RegisterIndexingMetrics() {
	indexingOnce.Do(func() {
		prometheus.MustRegister(IndexedDocumentsTotal)
		prometheus.MustRegister(IndexedChunksTotal)
		prometheus.MustRegister(EmbeddingRequestDuration)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func registerFallbackUsageTotalOnce() {
	fallbackOnce.Do(func() {
		prometheus.MustRegister(FallbackUsageTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterAdminMetrics() {
	adminOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func IncSubscriptionOperation(operation, status string) {
	SubscriptionOperationsTotal.WithLabelValues(operation, status).Inc()
}

func ObserveSubscriptionOperationDuration(operation string, duration time.Duration) {
	SubscriptionOperationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

// SetSubscriptionStatus flips the status gauge so exactly one of the given
// statuses reports 1.
func SetSubscriptionStatus(current string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == current {
			value = 1
		}
		SubscriptionStatus.WithLabelValues(s).Set(value)
	}
}

func SetSubscriptionExpiry(remaining time.Duration) {
	SubscriptionExpirySeconds.Set(remaining.Seconds())
}

func IncNotification(outcome string) {
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

func IncWebhookRequest(kind string, code int) {
	WebhookRequestsTotal.WithLabelValues(kind, fmt.Sprintf("%d", code)).Inc()
}

func ObserveIngestionDuration(duration time.Duration, status string) {
	IngestionProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetLedgerCacheSize(size int) {
	LedgerCacheSize.Set(float64(size))
}

func ObserveLedgerDuration(duration time.Duration, status string) {
	LedgerOperationDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncIndexedDocument(sink, status string) {
	IndexedDocumentsTotal.WithLabelValues(sink, status).Inc()
}

func AddIndexedChunks(n int) {
	IndexedChunksTotal.Add(float64(n))
}

func ObserveEmbeddingDuration(duration time.Duration, status string) {
	EmbeddingRequestDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetWorkerQueueSize(size int) {
	WorkerQueueSize.Set(float64(size))
}

func ObserveWorkerQueueWait(duration time.Duration) {
	WorkerQueueWaitDuration.Observe(float64(duration.Milliseconds()))
}
