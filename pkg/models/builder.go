package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentEnvelopeBuilder struct {
	envelope *DocumentEnvelope
}

func NewDocumentEnvelopeBuilder() *DocumentEnvelopeBuilder {
	return &DocumentEnvelopeBuilder{
		envelope: &DocumentEnvelope{
			Document: Document{Metadata: make(map[string]interface{})},
		},
	}
}

func (b *DocumentEnvelopeBuilder) WithID(id string) *DocumentEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *DocumentEnvelopeBuilder) WithSource(source string) *DocumentEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *DocumentEnvelopeBuilder) WithTimestamp(timestamp time.Time) *DocumentEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *DocumentEnvelopeBuilder) WithDocument(id, text string, metadata map[string]interface{}) *DocumentEnvelopeBuilder {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	b.envelope.Document = Document{ID: id, Text: text, Metadata: metadata}
	return b
}

func (b *DocumentEnvelopeBuilder) WithTraceID(traceID string) *DocumentEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *DocumentEnvelopeBuilder) WithNotification(notificationID, subscriptionID string) *DocumentEnvelopeBuilder {
	b.envelope.Metadata.NotificationID = notificationID
	b.envelope.Metadata.SubscriptionID = subscriptionID
	return b
}

// Build fills a random envelope id and the current time when unset.
func (b *DocumentEnvelopeBuilder) Build() *DocumentEnvelope {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now().UTC()
	}
	return b.envelope
}
