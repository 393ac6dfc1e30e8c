package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/aibroker/internal/application"
	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the broker REST API.
type Handler struct {
	credStore   driven.CredentialStore
	provider    driven.ProviderClient
	pool        *application.PoolService
	dispatchSvc *application.DispatchService
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	credStore driven.CredentialStore,
	provider driven.ProviderClient,
	pool *application.PoolService,
	dispatchSvc *application.DispatchService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credStore:   credStore,
		provider:    provider,
		pool:        pool,
		dispatchSvc: dispatchSvc,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered. Everything
// except the health check sits behind the identity middleware; logging and
// recovery wrap the whole surface.
func NewServeMux(h *Handler, jwtSecret []byte, logger *slog.Logger) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/credentials", h.AddCredential)
	api.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	api.HandleFunc("PUT /api/v1/credentials", h.UpdateCredential)
	api.HandleFunc("DELETE /api/v1/credentials", h.DeleteCredential)
	api.HandleFunc("POST /api/v1/credentials/test", h.TestCredential)
	api.HandleFunc("GET /api/v1/credentials/usage", h.CredentialUsage)
	api.HandleFunc("POST /api/v1/dispatch", h.Dispatch)
	api.HandleFunc("GET /api/v1/quota", h.QuotaStatus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("/api/v1/", authMiddleware(jwtSecret, logger, api))

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// AddCredential shares a new credential: validate, probe connectivity, persist.
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	var req AddCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body", codeInvalidInput)
		return
	}

	if req.Name == "" || req.BaseURL == "" || req.Secret == "" || req.ModelName == "" {
		writeErrorCode(w, http.StatusBadRequest, "missing required fields", codeInvalidInput)
		return
	}
	if req.DailyLimit == 0 {
		req.DailyLimit = 100
	}
	if req.DailyLimit < 1 || req.DailyLimit > 1000 {
		writeErrorCode(w, http.StatusBadRequest, "daily limit must be between 1 and 1000", codeInvalidInput)
		return
	}

	// Probe before persisting so dead credentials never enter the pool.
	probe := h.provider.TestConnectivity(r.Context(), req.BaseURL, req.Secret, req.ModelName)
	if !probe.OK {
		writeErrorCode(w, http.StatusBadRequest, "credential test failed: "+probe.Error, codeInvalidInput)
		return
	}

	cred := model.Credential{
		OwnerID:    identity.UserID,
		Name:       req.Name,
		BaseURL:    req.BaseURL,
		ModelName:  req.ModelName,
		DailyLimit: req.DailyLimit,
		IsActive:   true,
		Tags:       req.Tags,
	}

	id, err := h.credStore.Add(r.Context(), cred, req.Secret)
	if err != nil {
		if errors.Is(err, driven.ErrInvalidCredential) {
			writeErrorCode(w, http.StatusBadRequest, err.Error(), codeInvalidInput)
			return
		}
		h.logger.Error("failed to add credential", "user_id", identity.UserID, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
		return
	}

	cred.ID = id
	cred.Secret = model.MaskSecret(req.Secret)
	cred.CreatedAt = time.Now()
	writeJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

// ListCredentials returns the caller's credentials with masked secrets.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	creds, err := h.credStore.ListByOwner(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to list credentials", "user_id", identity.UserID, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		resp = append(resp, toCredentialResponse(cred))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateCredential applies a partial update to the caller's credential.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	var req UpdateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body", codeInvalidInput)
		return
	}
	if req.DailyLimit != nil && (*req.DailyLimit < 1 || *req.DailyLimit > 1000) {
		writeErrorCode(w, http.StatusBadRequest, "daily limit must be between 1 and 1000", codeInvalidInput)
		return
	}

	patch := model.CredentialPatch{IsActive: req.IsActive, DailyLimit: req.DailyLimit}
	if err := h.credStore.Update(r.Context(), req.ID, identity.UserID, patch); err != nil {
		h.writeStoreError(w, err, identity.UserID, req.ID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredential removes the caller's credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeErrorCode(w, http.StatusBadRequest, "id query parameter is required", codeInvalidInput)
		return
	}

	if err := h.credStore.Delete(r.Context(), id, identity.UserID); err != nil {
		h.writeStoreError(w, err, identity.UserID, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestCredential probes a candidate endpoint without persisting anything.
func (h *Handler) TestCredential(w http.ResponseWriter, r *http.Request) {
	var req TestCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body", codeInvalidInput)
		return
	}
	if req.BaseURL == "" || req.Secret == "" || req.ModelName == "" {
		writeErrorCode(w, http.StatusBadRequest, "missing required fields", codeInvalidInput)
		return
	}

	probe := h.provider.TestConnectivity(r.Context(), req.BaseURL, req.Secret, req.ModelName)
	writeJSON(w, http.StatusOK, TestCredentialResponse{
		OK:              probe.OK,
		AvailableModels: probe.AvailableModels,
		Error:           probe.Error,
	})
}

// CredentialUsage returns the audit log for one of the caller's credentials.
func (h *Handler) CredentialUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeErrorCode(w, http.StatusBadRequest, "id query parameter is required", codeInvalidInput)
		return
	}

	cred, err := h.credStore.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load credential", "credential_id", id, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
		return
	}
	if cred == nil {
		writeErrorCode(w, http.StatusNotFound, "credential not found", codeNotFound)
		return
	}
	if cred.OwnerID != identity.UserID {
		writeErrorCode(w, http.StatusForbidden, "credential not owned by caller", codeForbidden)
		return
	}

	entries, err := h.pool.UsageHistory(r.Context(), id, 50)
	if err != nil {
		h.logger.Error("failed to list usage history", "credential_id", id, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
		return
	}

	resp := make([]UsageLogResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, toUsageLogResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Dispatch invokes the shared-or-private AI call on behalf of the caller.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	var body DispatchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body", codeInvalidInput)
		return
	}

	req := model.DispatchRequest{
		Identity:  identity,
		Model:     body.Model,
		Prompt:    body.Prompt,
		MaxTokens: body.MaxTokens,
		LimitType: body.LimitType,
		Endpoint:  r.URL.Path,
	}
	if body.PrivateCredential != nil {
		req.Fallback = &model.PrivateCredential{
			BaseURL: body.PrivateCredential.BaseURL,
			Secret:  body.PrivateCredential.Secret,
		}
	}

	result, err := h.dispatchSvc.Dispatch(r.Context(), req)
	if err != nil {
		h.writeDispatchError(w, identity, err)
		return
	}

	writeJSON(w, http.StatusOK, toDispatchResponse(result))
}

// QuotaStatus returns the caller's usage across every limit type.
func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
		return
	}

	overview, err := h.dispatchSvc.QuotaStatus(r.Context(), identity)
	if err != nil {
		h.logger.Error("failed to read quota status", "user_id", identity.UserID, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaOverviewResponse(overview))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeDispatchError translates the dispatch taxonomy into caller-facing
// responses. Anything unrecognized is an infrastructure failure and denies.
func (h *Handler) writeDispatchError(w http.ResponseWriter, identity model.Identity, err error) {
	var quotaErr *application.QuotaExceededError
	var downstreamErr *application.DownstreamError

	switch {
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "daily limit exceeded",
			Code:  codeLimitExceeded,
			Details: map[string]any{
				"limit_type":    quotaErr.LimitType,
				"current_usage": quotaErr.Used,
				"daily_limit":   quotaErr.Limit,
				"reset_time":    quotaErr.ResetAt.UTC().Format(time.RFC3339),
			},
		})
	case errors.Is(err, application.ErrInvalidRequest):
		writeErrorCode(w, http.StatusBadRequest, "invalid dispatch request", codeInvalidInput)
	case errors.Is(err, application.ErrModelNotAllowed):
		writeErrorCode(w, http.StatusForbidden, "model not allowed for your trust tier", codeModelNotAllowed)
	case errors.Is(err, application.ErrNoAvailableCredential):
		writeErrorCode(w, http.StatusServiceUnavailable,
			"no shared credential available; supply a private credential to proceed", codeNoAvailableCredential)
	case errors.As(err, &downstreamErr):
		writeErrorCode(w, http.StatusBadGateway, "AI service temporarily unavailable", codeDownstreamError)
	case errors.Is(err, application.ErrAuthRequired):
		writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
	default:
		h.logger.Error("dispatch failed", "user_id", identity.UserID, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
	}
}

// writeStoreError maps credential store errors onto HTTP statuses.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, userID, credentialID string) {
	switch {
	case errors.Is(err, driven.ErrCredentialNotFound):
		writeErrorCode(w, http.StatusNotFound, "credential not found", codeNotFound)
	case errors.Is(err, driven.ErrNotOwner):
		writeErrorCode(w, http.StatusForbidden, "credential not owned by caller", codeForbidden)
	default:
		h.logger.Error("credential store error", "user_id", userID, "credential_id", credentialID, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternalError)
	}
}
