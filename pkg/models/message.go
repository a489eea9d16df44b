package models

import "time"

// DocumentEnvelope carries one extracted message from the ingestion
// pipeline to the index worker.
type DocumentEnvelope struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Document  Document  `json:"document"`
	Metadata  Metadata  `json:"metadata"`
}

// Document is the unit handed to the indexer. ID is the provider message
// id and doubles as the idempotency key.
type Document struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Metadata struct {
	TraceID        string   `json:"trace_id,omitempty"`
	NotificationID string   `json:"notification_id,omitempty"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	DLQ            *DLQInfo `json:"dlq,omitempty"`
}

type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	Timestamp   time.Time `json:"timestamp"`
}
