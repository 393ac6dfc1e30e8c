package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// PoolService is the credential pool manager: it selects an eligible,
// least-loaded credential for a requested model and records usage against
// the pool. Credential rows are mutated only through the store's atomic
// operations, never by direct field writes.
type PoolService struct {
	credStore driven.CredentialStore
	usageLog  driven.UsageLogStore
	logger    *slog.Logger
}

// NewPoolService creates a PoolService with the required dependencies.
func NewPoolService(credStore driven.CredentialStore, usageLog driven.UsageLogStore, logger *slog.Logger) *PoolService {
	return &PoolService{
		credStore: credStore,
		usageLog:  usageLog,
		logger:    logger,
	}
}

// Acquire returns the least-loaded eligible credential for the model, or nil
// when the pool has none. An empty pool is not an error: it signals the
// dispatcher to fall back to a caller-supplied private credential.
func (s *PoolService) Acquire(ctx context.Context, modelName string) (*model.Credential, error) {
	cred, err := s.credStore.AcquireForModel(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("acquire credential: %w", err)
	}
	if cred == nil {
		s.logger.Debug("no eligible shared credential", "model", modelName)
		return nil, nil
	}
	return cred, nil
}

// RecordUsage appends a usage log entry and, only for successful calls,
// consumes credential capacity. Failed provider calls are logged but leave
// used_today untouched so the pool is not drained by provider outages.
func (s *PoolService) RecordUsage(ctx context.Context, entry model.UsageLogEntry) error {
	if _, err := s.usageLog.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append usage log",
			"credential_id", entry.CredentialID,
			"user_id", entry.UserID,
			"error", err,
		)
	}

	if !entry.Success {
		return nil
	}

	if err := s.credStore.IncrementUsage(ctx, entry.CredentialID, time.Now()); err != nil {
		return fmt.Errorf("increment credential usage: %w", err)
	}
	return nil
}

// UsageHistory returns the most recent audit entries for a credential.
func (s *PoolService) UsageHistory(ctx context.Context, credentialID string, limit int) ([]model.UsageLogEntry, error) {
	entries, err := s.usageLog.ListByCredential(ctx, credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage history: %w", err)
	}
	return entries, nil
}

// ResetDailyCounters zeroes every credential's used_today. Idempotent:
// a second run in the same window touches zero rows.
func (s *PoolService) ResetDailyCounters(ctx context.Context) (int64, error) {
	n, err := s.credStore.ResetDailyUsage(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset daily counters: %w", err)
	}
	s.logger.Info("daily credential counters reset", "credentials_touched", n)
	return n, nil
}
