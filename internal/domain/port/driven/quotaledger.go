package driven

import (
	"context"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

// QuotaLedger owns the per-user, per-day, per-limit-type counters. All
// mutations go through its atomic operations; a denied reservation is a
// result, never an error.
type QuotaLedger interface {
	// Reserve atomically claims one unit of today's quota if the counter is
	// below limit. The increment-and-check must be a single atomic primitive:
	// two concurrent reservations for the last remaining slot admit exactly one.
	Reserve(ctx context.Context, userID, limitType string, limit int) (model.QuotaReservation, error)

	// Rollback releases one reserved unit, floored at zero. Used only when a
	// reservation succeeded but the attempt never reached the provider.
	Rollback(ctx context.Context, userID, limitType string) error

	// Status returns today's counter without reserving.
	Status(ctx context.Context, userID, limitType string, limit int) (model.QuotaStatus, error)

	// PurgeBefore deletes counters for days earlier than the given UTC day
	// key and returns the number of rows removed.
	PurgeBefore(ctx context.Context, day string) (int64, error)
}
