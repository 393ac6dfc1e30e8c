package model

import (
	"strings"
	"time"
)

// Credential is a shared third-party API access grant contributed by a user
// for pooled reuse. Secret holds the plaintext API key only when the
// credential was loaded for immediate use; listing paths return it masked.
type Credential struct {
	ID         string
	OwnerID    string
	Name       string
	BaseURL    string
	Secret     string
	ModelName  string
	DailyLimit int
	UsedToday  int
	TotalUsage int64
	IsActive   bool
	Tags       []string
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CredentialPatch is a partial update of the owner-mutable fields.
// Nil pointers leave the stored value unchanged.
type CredentialPatch struct {
	IsActive   *bool
	DailyLimit *int
}

// HasCapacity reports whether the credential can serve another call today.
func (c *Credential) HasCapacity() bool {
	return c.IsActive && c.UsedToday < c.DailyLimit
}

// MaskSecret returns the first 8 characters of a secret followed by an
// ellipsis. Secrets of 8 characters or fewer are fully masked.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:8] + "..."
}
