package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/tracing"
)

// Service is the seen-notification ledger. Claim is the single
// set-if-absent step that decides whether a notification is processed.
type Service struct {
	repo      Repository
	retention time.Duration
	onError   string
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, cfg config.IngestionConfig, log logger.Logger) *Service {
	retention := cfg.LedgerRetention
	if retention <= 0 {
		retention = constants.DefaultLedgerRetention
	}
	onError := strings.ToLower(cfg.OnLedgerError)
	if onError == "" {
		onError = constants.FallbackAllow
	}

	return &Service{
		repo:      repo,
		retention: retention,
		onError:   onError,
		logger:    log,
		now:       time.Now,
	}
}

// Claim records identity as seen. It returns true when the caller owns the
// notification and false for a duplicate. Store failures follow the
// on_ledger_error policy.
func (s *Service) Claim(ctx context.Context, identity string) (bool, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "ledger.claim")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	claimed, err := s.repo.SetNX(ctx, constants.CacheKeyPrefixLedger+identity, s.now().Unix(), s.retention)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveLedgerDuration(duration, "error")
		return s.handleStoreError(ctx, err, identity)
	}

	status := "duplicate"
	if claimed {
		status = "claimed"
	}
	metrics.ObserveLedgerDuration(duration, status)
	return claimed, nil
}

// Release forgets identity so a later redelivery is processed again.
func (s *Service) Release(ctx context.Context, identity string) error {
	if err := s.repo.Delete(ctx, constants.CacheKeyPrefixLedger+identity); err != nil {
		return fmt.Errorf("failed to release ledger identity %s: %w", identity, err)
	}
	return nil
}

func (s *Service) handleStoreError(ctx context.Context, err error, identity string) (bool, error) {
	if s.onError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("ledger", "allow_on_error", "store_error").Inc()
		s.logger.WarnwCtx(ctx, "Ledger store error, processing notification (fallback: allow)",
			"identity", identity,
			"error", err,
		)
		return true, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("ledger", "deny_on_error", "store_error").Inc()
	return false, fmt.Errorf("ledger error for identity %s: %w", identity, err)
}

// RunCacheMetrics refreshes the ledger size gauge until ctx is done.
func (s *Service) RunCacheMetrics(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			size, err := s.repo.GetCacheSize(ctx, constants.CacheKeyPrefixLedger)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Debugw("Failed to get ledger size for metrics", "error", err)
				continue
			}
			metrics.SetLedgerCacheSize(size)
		}
	}
}
