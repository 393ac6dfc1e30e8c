package driven

import (
	"context"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

// ProviderClient performs downstream calls against an OpenAI-compatible API.
// Both operations carry bounded timeouts inside the adapter; the completion
// timeout is materially longer than local store calls since it waits on a
// third party.
type ProviderClient interface {
	// ChatCompletion dispatches one completion request to the endpoint.
	ChatCompletion(ctx context.Context, baseURL, secret string, req model.ProviderRequest) (model.ProviderResult, error)

	// TestConnectivity probes the endpoint without persisting anything:
	// model listing first, falling back to a minimal completion.
	TestConnectivity(ctx context.Context, baseURL, secret, modelName string) model.ConnectivityResult
}
