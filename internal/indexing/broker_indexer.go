package indexing

import (
	"context"
	"fmt"

	"mailpulse/internal/broker"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/logging"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/models"
)

const sinkKafka = "kafka"

// BrokerIndexer hands documents to the index worker through a topic.
type BrokerIndexer struct {
	producer broker.Producer
	topic    string
	logger   logger.Logger
}

func NewBrokerIndexer(producer broker.Producer, topic string, log logger.Logger) *BrokerIndexer {
	return &BrokerIndexer{producer: producer, topic: topic, logger: log}
}

func (b *BrokerIndexer) Index(ctx context.Context, documentID, text string, metadata map[string]interface{}) error {
	env := models.NewDocumentEnvelopeBuilder().
		WithSource(constants.ServiceName).
		WithDocument(documentID, text, metadata).
		WithTraceID(logging.GetTraceID(ctx)).
		WithNotification(logging.GetNotificationID(ctx), logging.GetSubscriptionID(ctx)).
		Build()

	if err := b.producer.Publish(ctx, b.topic, *env); err != nil {
		metrics.IncIndexedDocument(sinkKafka, "error")
		return fmt.Errorf("publishing document %s: %w", documentID, err)
	}

	metrics.IncIndexedDocument(sinkKafka, "success")
	b.logger.DebugwCtx(ctx, "Document published",
		"document_id", documentID,
		"topic", b.topic,
		"envelope_id", env.ID,
	)
	return nil
}

// EnvelopeHandler feeds consumed envelopes into indexer. Invalid envelopes
// are reported as validation errors so the consumer does not retry them.
func EnvelopeHandler(indexer Indexer) broker.HandlerFunc {
	return func(ctx context.Context, env models.DocumentEnvelope) error {
		if err := models.ValidateDocumentEnvelope(&env); err != nil {
			return apperrors.ErrValidation.WithCause(err)
		}
		return indexer.Index(ctx, env.Document.ID, env.Document.Text, env.Document.Metadata)
	}
}
