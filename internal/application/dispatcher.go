package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// rollbackTimeout bounds the detached rollback call so a wedged store cannot
// hold a request goroutine forever.
const rollbackTimeout = 5 * time.Second

// DispatchService orchestrates one brokered AI call: quota reservation,
// trust-tier policy, credential acquisition, the downstream provider call,
// usage logging, and rollback when the attempt never reached the provider.
type DispatchService struct {
	ledger   driven.QuotaLedger
	pool     *PoolService
	policy   *TrustPolicy
	provider driven.ProviderClient
	logger   *slog.Logger
}

// NewDispatchService creates a DispatchService with all required dependencies.
func NewDispatchService(
	ledger driven.QuotaLedger,
	pool *PoolService,
	policy *TrustPolicy,
	provider driven.ProviderClient,
	logger *slog.Logger,
) *DispatchService {
	return &DispatchService{
		ledger:   ledger,
		pool:     pool,
		policy:   policy,
		provider: provider,
		logger:   logger,
	}
}

// Dispatch runs the request state machine:
//
//	reserve quota -> validate -> policy check -> acquire credential -> provider call
//
// Failures before the provider call roll the reservation back; once the call
// is dispatched the reservation is consumed even if the provider errors, so
// retries cannot drain shared capacity for free.
func (s *DispatchService) Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	if req.Identity.UserID == "" {
		return nil, ErrAuthRequired
	}

	limitType := req.LimitType
	if limitType == "" {
		limitType = model.LimitConversations
	}
	limit := s.policy.DailyLimit(req.Identity.TrustTier, limitType)

	reservation, err := s.ledger.Reserve(ctx, req.Identity.UserID, limitType, limit)
	if err != nil {
		// An ambiguous quota check must never allow the call through.
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	if !reservation.Allowed {
		return nil, &QuotaExceededError{
			LimitType: limitType,
			Used:      reservation.Count,
			Limit:     reservation.Limit,
			ResetAt:   model.NextResetTime(time.Now()),
		}
	}

	// Past this point every pre-dispatch exit must release the slot. The
	// rollback context is detached from the caller's so a disconnected
	// client still gets its quota back.
	rollback := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if err := s.ledger.Rollback(rctx, req.Identity.UserID, limitType); err != nil {
			s.logger.Error("quota rollback failed",
				"user_id", req.Identity.UserID,
				"limit_type", limitType,
				"error", err,
			)
		}
	}

	if req.Model == "" || strings.TrimSpace(req.Prompt) == "" {
		rollback()
		return nil, ErrInvalidRequest
	}

	if !s.policy.ModelAllowed(req.Identity.TrustTier, req.Model) {
		rollback()
		return nil, ErrModelNotAllowed
	}

	cred, err := s.pool.Acquire(ctx, req.Model)
	if err != nil {
		rollback()
		return nil, err
	}

	var baseURL, secret, contributor string
	source := model.SourceShared
	switch {
	case cred != nil:
		baseURL, secret, contributor = cred.BaseURL, cred.Secret, cred.Name
	case req.Fallback != nil:
		if req.Fallback.BaseURL == "" || req.Fallback.Secret == "" {
			rollback()
			return nil, ErrInvalidRequest
		}
		baseURL, secret = req.Fallback.BaseURL, req.Fallback.Secret
		source = model.SourcePrivate
	default:
		rollback()
		return nil, ErrNoAvailableCredential
	}

	// Caller disconnection before dispatch is treated like a pre-dispatch
	// validation failure.
	if err := ctx.Err(); err != nil {
		rollback()
		return nil, fmt.Errorf("caller gone before dispatch: %w", err)
	}

	result, callErr := s.provider.ChatCompletion(ctx, baseURL, secret, model.ProviderRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})

	// The attempt reached the provider: the reservation is consumed whether
	// or not the call succeeded. Only pool credentials are accounted;
	// private fallbacks bypass pool bookkeeping entirely.
	if cred != nil {
		entry := model.UsageLogEntry{
			CredentialID: cred.ID,
			UserID:       req.Identity.UserID,
			Endpoint:     req.Endpoint,
			ModelUsed:    req.Model,
			Success:      callErr == nil,
		}
		if callErr != nil {
			entry.ErrorMessage = callErr.Error()
		} else {
			tokens := result.TokensUsed
			entry.TokensUsed = &tokens
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		if err := s.pool.RecordUsage(rctx, entry); err != nil {
			s.logger.Error("failed to record credential usage",
				"credential_id", cred.ID,
				"error", err,
			)
		}
		cancel()
	}

	if callErr != nil {
		s.logger.Warn("downstream provider call failed",
			"model", req.Model,
			"source", string(source),
			"error", callErr,
		)
		return nil, &DownstreamError{Err: callErr}
	}

	quota, err := s.ledger.Status(ctx, req.Identity.UserID, limitType, limit)
	if err != nil {
		// The call already succeeded; degrade to the reservation snapshot
		// rather than failing the whole dispatch.
		quota = model.QuotaStatus{
			LimitType: limitType,
			Used:      reservation.Count,
			Limit:     limit,
			Remaining: max(limit-reservation.Count, 0),
			ResetAt:   model.NextResetTime(time.Now()),
		}
	}

	return &model.DispatchResult{
		Content:     result.Content,
		Model:       result.Model,
		TokensUsed:  result.TokensUsed,
		Source:      source,
		Contributor: contributor,
		Quota:       quota,
	}, nil
}

// QuotaOverview is the read-only per-user quota report for the status endpoint.
type QuotaOverview struct {
	UserID        string
	TrustTier     int
	TierName      string
	AllowedModels []string
	Limits        []model.QuotaStatus
	ResetAt       time.Time
}

// QuotaStatus assembles the caller's usage across every limit type without
// reserving anything.
func (s *DispatchService) QuotaStatus(ctx context.Context, identity model.Identity) (*QuotaOverview, error) {
	if identity.UserID == "" {
		return nil, ErrAuthRequired
	}

	limits := make([]model.QuotaStatus, 0, len(model.LimitTypes))
	for _, limitType := range model.LimitTypes {
		limit := s.policy.DailyLimit(identity.TrustTier, limitType)
		status, err := s.ledger.Status(ctx, identity.UserID, limitType, limit)
		if err != nil {
			return nil, fmt.Errorf("quota status for %s: %w", limitType, err)
		}
		limits = append(limits, status)
	}

	return &QuotaOverview{
		UserID:        identity.UserID,
		TrustTier:     identity.TrustTier,
		TierName:      s.policy.TierName(identity.TrustTier),
		AllowedModels: s.policy.AllowedModels(identity.TrustTier),
		Limits:        limits,
		ResetAt:       model.NextResetTime(time.Now()),
	}, nil
}
