package driven

import (
	"context"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

// UsageLogStore defines the driven port for the append-only usage audit log.
// Entries are never updated or deleted by normal operation.
type UsageLogStore interface {
	// Append persists a new entry and returns its id.
	Append(ctx context.Context, entry model.UsageLogEntry) (string, error)

	// ListByCredential returns the most recent entries for a credential,
	// newest first, capped at limit.
	ListByCredential(ctx context.Context, credentialID string, limit int) ([]model.UsageLogEntry, error)
}
