package ingestion

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/extract"
	"mailpulse/internal/graph"
	"mailpulse/internal/indexing"
	"mailpulse/internal/ledger"
	"mailpulse/internal/logger"
	"mailpulse/pkg/cel"
	"mailpulse/pkg/clock"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/logging"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/retry"
	"mailpulse/pkg/tracing"
)

// ClientStateSource yields the secret the current subscription was created
// with, or "" when no subscription accepts notifications.
type ClientStateSource interface {
	ClientState() string
}

type Ledger interface {
	Claim(ctx context.Context, identity string) (bool, error)
	Release(ctx context.Context, identity string) error
}

type MessageFetcher interface {
	FetchMessage(ctx context.Context, resource string) (*graph.Message, error)
}

type Dependencies struct {
	ClientState ClientStateSource
	Ledger      Ledger
	Fetcher     MessageFetcher
	Indexer     indexing.Indexer
	Pool        *Pool
	// Filter is optional; nil indexes every message with a body.
	Filter *cel.Filter
	Clock  clock.Clock
}

// Pipeline turns verified notifications into indexed documents. Accept runs
// on the request path; everything after the ledger claim runs on the pool.
type Pipeline struct {
	deps         Dependencies
	hasher       *ledger.Hasher
	fetchTimeout time.Duration
	retryPolicy  retry.Policy
	logger       logger.Logger
}

func NewPipeline(deps Dependencies, cfg config.IngestionConfig, log logger.Logger) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	bucket := cfg.DedupBucket
	if bucket <= 0 {
		bucket = constants.DefaultDedupBucket
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = constants.DefaultFetchTimeout
	}

	return &Pipeline{
		deps:         deps,
		hasher:       ledger.NewHasher(bucket),
		fetchTimeout: fetchTimeout,
		retryPolicy: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			MaxElapsedTime:  fetchTimeout,
		},
		logger: log,
	}
}

// WithRetryPolicy replaces the fetch and index retry policy.
func (p *Pipeline) WithRetryPolicy(policy retry.Policy) *Pipeline {
	p.retryPolicy = policy
	return p
}

// Accept verifies, claims and enqueues one notification and returns the
// outcome label. It never fails the delivery.
func (p *Pipeline) Accept(ctx context.Context, n *Notification) string {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = p.deps.Clock.Now()
	}

	if !p.verifyClientState(n.ClientState) {
		p.logger.WarnwCtx(ctx, "Rejecting notification with unexpected client state",
			"subscription_id", n.SubscriptionID,
			"resource", n.Resource,
		)
		return p.count(OutcomeClientStateInvalid)
	}

	identity := p.hasher.Identity(ledger.Key{
		NotificationID: n.ID,
		SubscriptionID: n.SubscriptionID,
		ResourceID:     n.ResourceID(),
		Resource:       n.Resource,
		ChangeType:     n.ChangeType,
		ReceivedAt:     n.ReceivedAt,
	})
	ctx = logging.WithNotificationID(ctx, identity)
	ctx = logging.WithSubscriptionID(ctx, n.SubscriptionID)

	claimed, err := p.deps.Ledger.Claim(ctx, identity)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Ledger rejected notification", "error", err)
		return p.count(OutcomeLedgerDenied)
	}
	if !claimed {
		p.logger.DebugwCtx(ctx, "Duplicate notification ignored", "resource", n.Resource)
		return p.count(OutcomeDuplicate)
	}

	notification := *n
	traceID := logging.GetTraceID(ctx)
	err = p.deps.Pool.Submit(func(workCtx context.Context) {
		workCtx = logging.WithNotificationID(workCtx, identity)
		workCtx = logging.WithSubscriptionID(workCtx, notification.SubscriptionID)
		if traceID != "" {
			workCtx = logging.WithTraceID(workCtx, traceID)
		}
		p.process(workCtx, identity, &notification)
	})
	if err != nil {
		p.logger.WarnwCtx(ctx, "Dropping notification, worker pool unavailable", "error", err)
		p.release(ctx, identity)
		return p.count(OutcomeQueueFull)
	}

	return p.count(OutcomeAccepted)
}

func (p *Pipeline) verifyClientState(got string) bool {
	want := p.deps.ClientState.ClientState()
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (p *Pipeline) process(ctx context.Context, identity string, n *Notification) {
	start := time.Now()
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "ingestion.process")
	defer span.End()
	tracing.NotificationAttributes(span, n.SubscriptionID, identity, n.Resource)

	outcome, err := p.fetchAndIndex(ctx, span, n)
	metrics.ObserveIngestionDuration(time.Since(start), outcome)
	p.count(outcome)

	if err == nil {
		return
	}

	tracing.RecordError(span, err)
	p.logger.ErrorwCtx(ctx, "Notification processing failed",
		"error", err,
		"outcome", outcome,
		"resource", n.Resource,
	)

	// A retryable failure leaves the identity unclaimed so a later
	// redelivery can still be processed.
	if apperrors.Classify(err) == apperrors.ClassRetryable || errors.Is(err, context.Canceled) {
		p.release(context.WithoutCancel(ctx), identity)
	}
}

func (p *Pipeline) fetchAndIndex(ctx context.Context, span trace.Span, n *Notification) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var msg *graph.Message
	err := retry.Retry(fetchCtx, p.retryPolicy, func() error {
		var fetchErr error
		msg, fetchErr = p.deps.Fetcher.FetchMessage(fetchCtx, n.Resource)
		return fetchErr
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			p.logger.InfowCtx(ctx, "Message no longer exists, skipping", "resource", n.Resource)
			return OutcomeMessageGone, nil
		}
		return OutcomeFailed, err
	}

	text, err := extract.Text(msg.Body.ContentType, msg.Body.Content)
	if err != nil {
		return OutcomeFailed, apperrors.ErrValidation.WithDetail("message_id", msg.ID).WithCause(err)
	}
	if text == "" {
		p.logger.InfowCtx(ctx, "Message has no body content, skipping", "message_id", msg.ID)
		return OutcomeEmptyBody, nil
	}

	if p.deps.Filter != nil {
		ok, err := p.deps.Filter.Matches(ctx, messageVars(msg, n))
		if err != nil {
			return OutcomeFailed, apperrors.ErrValidation.WithDetail("filter", p.deps.Filter.Expression()).WithCause(err)
		}
		if !ok {
			p.logger.DebugwCtx(ctx, "Message excluded by filter", "message_id", msg.ID)
			return OutcomeFiltered, nil
		}
	}

	documentID := msg.ID
	if documentID == "" {
		documentID = n.ResourceID()
	}
	span.AddEvent("indexing")

	err = retry.Retry(ctx, p.retryPolicy, func() error {
		return p.deps.Indexer.Index(ctx, documentID, text, documentMetadata(msg, n))
	})
	if err != nil {
		return OutcomeFailed, err
	}

	p.logger.InfowCtx(ctx, "Message indexed",
		"message_id", documentID,
		"subject", msg.Subject,
	)
	return OutcomeIndexed, nil
}

func (p *Pipeline) release(ctx context.Context, identity string) {
	if err := p.deps.Ledger.Release(ctx, identity); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to release ledger claim", "error", err)
	}
}

func (p *Pipeline) count(outcome string) string {
	metrics.IncNotification(outcome)
	return outcome
}

func documentMetadata(msg *graph.Message, n *Notification) map[string]interface{} {
	meta := map[string]interface{}{
		"email_id":            msg.ID,
		"subject":             msg.Subject,
		"sender":              msg.From.EmailAddress.Address,
		"sender_name":         msg.From.EmailAddress.Name,
		"to":                  graph.Addresses(msg.ToRecipients),
		"cc":                  graph.Addresses(msg.CcRecipients),
		"has_attachments":     msg.HasAttachments,
		"internet_message_id": msg.InternetMessageID,
		"subscription_id":     n.SubscriptionID,
		"change_type":         n.ChangeType,
	}
	if !msg.SentDateTime.IsZero() {
		meta["timestamp"] = msg.SentDateTime.UTC().Format(time.RFC3339)
	}
	return meta
}

func messageVars(msg *graph.Message, n *Notification) cel.MessageVars {
	return cel.MessageVars{
		ID:             msg.ID,
		Subject:        msg.Subject,
		BodyPreview:    msg.BodyPreview,
		From:           msg.From.EmailAddress.Address,
		FromName:       msg.From.EmailAddress.Name,
		To:             graph.Addresses(msg.ToRecipients),
		Cc:             graph.Addresses(msg.CcRecipients),
		HasAttachments: msg.HasAttachments,
		SentAt:         msg.SentDateTime,
		Resource:       n.Resource,
		ChangeType:     n.ChangeType,
	}
}
