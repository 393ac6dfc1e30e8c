package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// ResetService runs the scheduled rollover sweeps: zeroing credential daily
// counters at the reset boundary and purging quota counters past retention.
// Both sweeps are idempotent, so an extra run is harmless.
type ResetService struct {
	pool          *PoolService
	ledger        driven.QuotaLedger
	schedule      string
	retentionDays int
	logger        *slog.Logger
	cron          *cron.Cron
}

// NewResetService creates a ResetService. schedule is a cron expression
// evaluated in UTC so it lines up with the ledger's UTC day buckets.
func NewResetService(
	pool *PoolService,
	ledger driven.QuotaLedger,
	schedule string,
	retentionDays int,
	logger *slog.Logger,
) *ResetService {
	return &ResetService{
		pool:          pool,
		ledger:        ledger,
		schedule:      schedule,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start registers the sweep with the cron scheduler and starts it.
func (s *ResetService) Start() error {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.RunNow(context.Background()); err != nil {
			s.logger.Error("scheduled reset sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register reset schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("reset sweep scheduled", "schedule", s.schedule, "retention_days", s.retentionDays)
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *ResetService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunNow performs one sweep immediately.
func (s *ResetService) RunNow(ctx context.Context) error {
	reset, err := s.pool.ResetDailyCounters(ctx)
	if err != nil {
		return err
	}

	cutoff := model.DayKey(time.Now().AddDate(0, 0, -s.retentionDays))
	purged, err := s.ledger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge stale quota counters: %w", err)
	}

	s.logger.Info("reset sweep complete",
		"credentials_reset", reset,
		"quota_rows_purged", purged,
		"purge_cutoff", cutoff,
	)
	return nil
}
