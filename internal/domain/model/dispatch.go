package model

// Identity is the verified output of the external authentication layer:
// a user id plus the trust tier assigned to that user.
type Identity struct {
	UserID    string
	TrustTier int
}

// PrivateCredential is a caller-supplied endpoint used directly when the
// shared pool has no eligible entry. It is never persisted and bypasses
// pool accounting entirely.
type PrivateCredential struct {
	BaseURL string
	Secret  string
}

// DispatchRequest describes one AI call to broker on behalf of a user.
type DispatchRequest struct {
	Identity  Identity
	Model     string
	Prompt    string
	MaxTokens int
	LimitType string
	Endpoint  string
	Fallback  *PrivateCredential
}

// CredentialSource identifies which kind of credential served a dispatch.
type CredentialSource string

const (
	SourceShared  CredentialSource = "shared"
	SourcePrivate CredentialSource = "private"
)

// DispatchResult is the provider reply plus the caller's quota snapshot.
// Contributor carries the display name of the shared credential that served
// the call so the UI can attribute it; empty for private credentials.
type DispatchResult struct {
	Content     string
	Model       string
	TokensUsed  int
	Source      CredentialSource
	Contributor string
	Quota       QuotaStatus
}
