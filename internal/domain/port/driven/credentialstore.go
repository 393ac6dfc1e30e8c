package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// AIBROKER_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set AIBROKER_SECRET_KEY")

// ErrCredentialNotFound is returned when no credential exists for the given id.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrNotOwner is returned when a mutation targets a credential the caller
// does not own.
var ErrNotOwner = errors.New("credential not owned by caller")

// ErrInvalidCredential is returned by Add when required fields are missing
// or the base URL is malformed.
var ErrInvalidCredential = errors.New("invalid credential")

// CredentialStore defines the driven port for the shared-credential pool's
// persistence. The adapter owns encryption; this interface operates on
// plaintext secrets at the domain boundary and the adapter must never
// return a decrypted secret from bulk-listing calls.
type CredentialStore interface {
	// Add validates, encrypts and persists a new credential, returning its id.
	Add(ctx context.Context, cred model.Credential, plaintextSecret string) (string, error)

	// Get returns the credential with its secret decrypted for immediate use.
	// Returns (nil, nil) when no credential exists for the id.
	Get(ctx context.Context, id string) (*model.Credential, error)

	// ListByOwner returns the owner's credentials with masked secrets.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Credential, error)

	// Update applies a partial update to the owner-mutable fields. Returns
	// ErrCredentialNotFound when absent, ErrNotOwner when owned by someone else.
	Update(ctx context.Context, id, ownerID string, patch model.CredentialPatch) error

	// Delete removes the credential. Same error contract as Update.
	Delete(ctx context.Context, id, ownerID string) error

	// AcquireForModel returns the least-loaded active credential for the model
	// with remaining daily capacity, secret decrypted. Ties break toward the
	// least-recently-used entry. Returns (nil, nil) when none is eligible.
	AcquireForModel(ctx context.Context, modelName string) (*model.Credential, error)

	// IncrementUsage atomically bumps used_today and total_usage and stamps
	// last_used_at. Called only after a successful downstream call.
	IncrementUsage(ctx context.Context, id string, at time.Time) error

	// ResetDailyUsage zeroes used_today for every credential and returns the
	// number of rows that changed. Running it twice in the same window is a
	// no-op beyond the first.
	ResetDailyUsage(ctx context.Context) (int64, error)
}
