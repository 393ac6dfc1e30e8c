package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/aibroker/internal/application"
	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

// Caller-facing error codes. Every terminal dispatch outcome gets a distinct
// code so clients can react without parsing messages.
const (
	codeUnauthorized          = "UNAUTHORIZED"
	codeInvalidInput          = "INVALID_INPUT"
	codeLimitExceeded         = "LIMIT_EXCEEDED"
	codeModelNotAllowed       = "MODEL_NOT_ALLOWED"
	codeNoAvailableCredential = "NO_AVAILABLE_CREDENTIAL"
	codeDownstreamError       = "AI_SERVICE_ERROR"
	codeNotFound              = "NOT_FOUND"
	codeForbidden             = "FORBIDDEN"
	codeInternalError         = "INTERNAL_ERROR"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"INTERNAL_ERROR"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeErrorCode writes a JSON error response with a distinguishing code.
func writeErrorCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// AddCredentialRequest is the JSON body for sharing a new credential.
type AddCredentialRequest struct {
	Name       string   `json:"name"`
	BaseURL    string   `json:"base_url"`
	Secret     string   `json:"secret"`
	ModelName  string   `json:"model_name"`
	DailyLimit int      `json:"daily_limit"`
	Tags       []string `json:"tags"`
}

// UpdateCredentialRequest is the JSON body for the credential update endpoint.
type UpdateCredentialRequest struct {
	ID         string `json:"id"`
	IsActive   *bool  `json:"is_active,omitempty"`
	DailyLimit *int   `json:"daily_limit,omitempty"`
}

// TestCredentialRequest is the JSON body for the connectivity probe endpoint.
type TestCredentialRequest struct {
	BaseURL   string `json:"base_url"`
	Secret    string `json:"secret"`
	ModelName string `json:"model_name"`
}

// TestCredentialResponse reports a connectivity probe outcome.
type TestCredentialResponse struct {
	OK              bool     `json:"ok"`
	AvailableModels []string `json:"available_models,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// CredentialResponse is the JSON representation of a shared credential.
// Secret is always the masked form.
type CredentialResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	BaseURL    string   `json:"base_url"`
	Secret     string   `json:"secret"`
	ModelName  string   `json:"model_name"`
	DailyLimit int      `json:"daily_limit"`
	UsedToday  int      `json:"used_today"`
	TotalUsage int64    `json:"total_usage"`
	IsActive   bool     `json:"is_active"`
	Tags       []string `json:"tags"`
	LastUsedAt string   `json:"last_used_at,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// DispatchRequestBody is the JSON body for the dispatch endpoint.
type DispatchRequestBody struct {
	Model             string                    `json:"model"`
	Prompt            string                    `json:"prompt"`
	MaxTokens         int                       `json:"max_tokens,omitempty"`
	LimitType         string                    `json:"limit_type,omitempty"`
	PrivateCredential *PrivateCredentialRequest `json:"private_credential,omitempty"`
}

// PrivateCredentialRequest is the caller-supplied fallback endpoint.
type PrivateCredentialRequest struct {
	BaseURL string `json:"base_url"`
	Secret  string `json:"secret"`
}

// DispatchResponse is the JSON representation of a completed dispatch.
type DispatchResponse struct {
	Content     string              `json:"content"`
	Model       string              `json:"model"`
	TokensUsed  int                 `json:"tokens_used"`
	Source      string              `json:"source"`
	Contributor string              `json:"contributor,omitempty"`
	Quota       QuotaStatusResponse `json:"quota"`
}

// QuotaStatusResponse is the JSON representation of one daily counter.
type QuotaStatusResponse struct {
	LimitType string `json:"limit_type"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

// QuotaOverviewResponse is the JSON representation of the quota status endpoint.
type QuotaOverviewResponse struct {
	User          QuotaUserResponse     `json:"user"`
	Limits        []QuotaStatusResponse `json:"limits"`
	AllowedModels []string              `json:"allowed_models"`
	ResetAt       string                `json:"reset_at"`
}

// QuotaUserResponse identifies the caller in quota reports.
type QuotaUserResponse struct {
	ID        string `json:"id"`
	TrustTier int    `json:"trust_tier"`
	TierName  string `json:"tier_name"`
}

// UsageLogResponse is the JSON representation of one audit record.
type UsageLogResponse struct {
	ID           string `json:"id"`
	CredentialID string `json:"credential_id"`
	UserID       string `json:"user_id"`
	Endpoint     string `json:"endpoint"`
	ModelUsed    string `json:"model_used"`
	TokensUsed   *int   `json:"tokens_used,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toCredentialResponse(cred model.Credential) CredentialResponse {
	tags := cred.Tags
	if tags == nil {
		tags = []string{}
	}

	resp := CredentialResponse{
		ID:         cred.ID,
		Name:       cred.Name,
		BaseURL:    cred.BaseURL,
		Secret:     cred.Secret,
		ModelName:  cred.ModelName,
		DailyLimit: cred.DailyLimit,
		UsedToday:  cred.UsedToday,
		TotalUsage: cred.TotalUsage,
		IsActive:   cred.IsActive,
		Tags:       tags,
		CreatedAt:  cred.CreatedAt.UTC().Format(time.RFC3339),
	}
	if cred.LastUsedAt != nil {
		resp.LastUsedAt = cred.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toQuotaStatusResponse(status model.QuotaStatus) QuotaStatusResponse {
	return QuotaStatusResponse{
		LimitType: status.LimitType,
		Used:      status.Used,
		Limit:     status.Limit,
		Remaining: status.Remaining,
		ResetAt:   status.ResetAt.UTC().Format(time.RFC3339),
	}
}

func toQuotaOverviewResponse(overview *application.QuotaOverview) QuotaOverviewResponse {
	limits := make([]QuotaStatusResponse, 0, len(overview.Limits))
	for _, status := range overview.Limits {
		limits = append(limits, toQuotaStatusResponse(status))
	}

	return QuotaOverviewResponse{
		User: QuotaUserResponse{
			ID:        overview.UserID,
			TrustTier: overview.TrustTier,
			TierName:  overview.TierName,
		},
		Limits:        limits,
		AllowedModels: overview.AllowedModels,
		ResetAt:       overview.ResetAt.UTC().Format(time.RFC3339),
	}
}

func toUsageLogResponse(entry model.UsageLogEntry) UsageLogResponse {
	return UsageLogResponse{
		ID:           entry.ID,
		CredentialID: entry.CredentialID,
		UserID:       entry.UserID,
		Endpoint:     entry.Endpoint,
		ModelUsed:    entry.ModelUsed,
		TokensUsed:   entry.TokensUsed,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toDispatchResponse(result *model.DispatchResult) DispatchResponse {
	return DispatchResponse{
		Content:     result.Content,
		Model:       result.Model,
		TokensUsed:  result.TokensUsed,
		Source:      string(result.Source),
		Contributor: result.Contributor,
		Quota:       toQuotaStatusResponse(result.Quota),
	}
}
