package model

import "time"

// UsageLogEntry is an immutable audit record of one shared-credential use.
// Entries are append-only; failed provider calls are logged with Success=false
// but do not consume credential capacity.
type UsageLogEntry struct {
	ID           string
	CredentialID string
	UserID       string
	Endpoint     string
	ModelUsed    string
	TokensUsed   *int
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}
