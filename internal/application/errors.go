package application

import (
	"errors"
	"fmt"
	"time"
)

// Terminal dispatch outcomes. Each maps to a distinct caller-facing code at
// the HTTP boundary; anything else is an infrastructure failure and defaults
// to denial.
var (
	// ErrAuthRequired means no verified identity accompanied the request.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidRequest means the payload was malformed; the quota
	// reservation has already been rolled back when this is returned.
	ErrInvalidRequest = errors.New("invalid dispatch request")

	// ErrModelNotAllowed means the trust tier does not permit the requested
	// model; rolled back.
	ErrModelNotAllowed = errors.New("model not allowed for trust tier")

	// ErrNoAvailableCredential means the shared pool is exhausted and no
	// private fallback was supplied; rolled back. Distinct from quota
	// exhaustion so callers can suggest supplying a private credential.
	ErrNoAvailableCredential = errors.New("no shared credential available")
)

// QuotaExceededError reports a denied reservation together with the usage
// snapshot callers need to tell the user when to retry. Nothing was reserved,
// so there is nothing to roll back.
type QuotaExceededError struct {
	LimitType string
	Used      int
	Limit     int
	ResetAt   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s limit exceeded: %d/%d, resets %s",
		e.LimitType, e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// DownstreamError wraps a provider failure that happened after dispatch.
// The attempt reached the provider, so the caller's quota reservation is
// consumed and must not be rolled back.
type DownstreamError struct {
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream provider call failed: %v", e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}
