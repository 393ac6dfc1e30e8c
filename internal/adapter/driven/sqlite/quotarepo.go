package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QuotaLedger = (*QuotaRepo)(nil)

// QuotaRepo is the SQLite implementation of the QuotaLedger port. Counters
// are keyed by (user, UTC day, limit type); the date change rolls quota over
// implicitly. Reserve uses a single conditional UPDATE inside a writer
// transaction as the atomic increment-if-below primitive.
type QuotaRepo struct {
	db *DB
}

// NewQuotaRepo creates a new QuotaRepo backed by the given DB.
func NewQuotaRepo(db *DB) *QuotaRepo {
	return &QuotaRepo{db: db}
}

// Reserve atomically claims one unit of today's quota for (userID, limitType).
// A denied reservation leaves the counter untouched and is reported via
// Allowed=false, not an error.
func (r *QuotaRepo) Reserve(ctx context.Context, userID, limitType string, limit int) (model.QuotaReservation, error) {
	day := model.DayKey(time.Now())

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.QuotaReservation{}, fmt.Errorf("begin reserve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Create today's counter on first touch; refresh the stored limit in case
	// the user's tier changed since the row was created.
	const upsert = `
		INSERT INTO quota_counters (user_id, day, limit_type, count, daily_limit)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_id, day, limit_type) DO UPDATE SET daily_limit = excluded.daily_limit
	`
	if _, err := tx.ExecContext(ctx, upsert, userID, day, limitType, limit); err != nil {
		return model.QuotaReservation{}, fmt.Errorf("upsert quota counter: %w", err)
	}

	const reserve = `
		UPDATE quota_counters
		SET count = count + 1
		WHERE user_id = ? AND day = ? AND limit_type = ? AND count < daily_limit
	`
	res, err := tx.ExecContext(ctx, reserve, userID, day, limitType)
	if err != nil {
		return model.QuotaReservation{}, fmt.Errorf("reserve quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.QuotaReservation{}, fmt.Errorf("reserve quota rows: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT count FROM quota_counters WHERE user_id = ? AND day = ? AND limit_type = ?`,
		userID, day, limitType,
	).Scan(&count)
	if err != nil {
		return model.QuotaReservation{}, fmt.Errorf("read quota counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.QuotaReservation{}, fmt.Errorf("commit reserve: %w", err)
	}

	return model.QuotaReservation{
		Allowed: affected > 0,
		Count:   count,
		Limit:   limit,
	}, nil
}

// Rollback releases one reserved unit from today's counter, floored at zero.
func (r *QuotaRepo) Rollback(ctx context.Context, userID, limitType string) error {
	day := model.DayKey(time.Now())

	const query = `
		UPDATE quota_counters
		SET count = count - 1
		WHERE user_id = ? AND day = ? AND limit_type = ? AND count > 0
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID, day, limitType); err != nil {
		return fmt.Errorf("rollback quota: %w", err)
	}
	return nil
}

// Status returns today's counter without reserving. A missing row means
// nothing was used yet today.
func (r *QuotaRepo) Status(ctx context.Context, userID, limitType string, limit int) (model.QuotaStatus, error) {
	day := model.DayKey(time.Now())

	var count int
	err := r.db.Reader.QueryRowContext(ctx,
		`SELECT count FROM quota_counters WHERE user_id = ? AND day = ? AND limit_type = ?`,
		userID, day, limitType,
	).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.QuotaStatus{}, fmt.Errorf("read quota status: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return model.QuotaStatus{
		LimitType: limitType,
		Used:      count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   model.NextResetTime(time.Now()),
	}, nil
}

// PurgeBefore deletes counters for days earlier than the given UTC day key.
// Old rows are dead weight once the date rolls over; this is the retention sweep.
func (r *QuotaRepo) PurgeBefore(ctx context.Context, day string) (int64, error) {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM quota_counters WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("purge quota counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge quota counters rows: %w", err)
	}
	return n, nil
}
