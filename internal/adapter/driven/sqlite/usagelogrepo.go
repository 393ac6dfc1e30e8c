package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UsageLogStore = (*UsageLogRepo)(nil)

// UsageLogRepo is the SQLite implementation of the UsageLogStore port.
// The table is append-only; nothing here updates or deletes rows.
type UsageLogRepo struct {
	db *DB
}

// NewUsageLogRepo creates a new UsageLogRepo backed by the given DB.
func NewUsageLogRepo(db *DB) *UsageLogRepo {
	return &UsageLogRepo{db: db}
}

// Append persists a new usage log entry and returns its id.
func (r *UsageLogRepo) Append(ctx context.Context, entry model.UsageLogEntry) (string, error) {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var tokens any
	if entry.TokensUsed != nil {
		tokens = *entry.TokensUsed
	}
	var errMsg any
	if entry.ErrorMessage != "" {
		errMsg = entry.ErrorMessage
	}

	const query = `
		INSERT INTO usage_logs (id, credential_id, user_id, endpoint, model_used, tokens_used, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		id, entry.CredentialID, entry.UserID, entry.Endpoint, entry.ModelUsed,
		tokens, boolToInt(entry.Success), errMsg, formatTime(createdAt),
	)
	if err != nil {
		return "", fmt.Errorf("append usage log: %w", err)
	}
	return id, nil
}

// ListByCredential returns the most recent entries for a credential, newest first.
func (r *UsageLogRepo) ListByCredential(ctx context.Context, credentialID string, limit int) ([]model.UsageLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, credential_id, user_id, endpoint, model_used, tokens_used, success, error_message, created_at
		FROM usage_logs
		WHERE credential_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	defer rows.Close()

	var entries []model.UsageLogEntry
	for rows.Next() {
		var entry model.UsageLogEntry
		var tokens sql.NullInt64
		var success int
		var errMsg sql.NullString
		var createdAt string

		err := rows.Scan(
			&entry.ID, &entry.CredentialID, &entry.UserID, &entry.Endpoint, &entry.ModelUsed,
			&tokens, &success, &errMsg, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}

		if tokens.Valid {
			v := int(tokens.Int64)
			entry.TokensUsed = &v
		}
		entry.Success = success != 0
		entry.ErrorMessage = errMsg.String
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse usage log created_at: %w", err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage logs: %w", err)
	}

	return entries, nil
}
