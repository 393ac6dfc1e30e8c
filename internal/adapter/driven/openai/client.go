// Package openai is the driven adapter for OpenAI-compatible providers.
// Each call builds a short-lived client for the credential's base URL, so a
// single adapter instance serves every credential in the pool.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderClient = (*Client)(nil)

// probeTimeout bounds connectivity tests; probes are cheap and should fail
// fast rather than wait out the full completion timeout.
const probeTimeout = 10 * time.Second

// Client dispatches chat completions and connectivity probes to any
// OpenAI-compatible endpoint.
type Client struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a Client. timeout bounds each completion call and must be
// materially longer than local store calls since it waits on a third party.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{timeout: timeout, logger: logger}
}

// ChatCompletion dispatches one completion request to the endpoint.
func (c *Client) ChatCompletion(ctx context.Context, baseURL, secret string, req model.ProviderRequest) (model.ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := newAPIClient(baseURL, secret)
	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return model.ProviderResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.ProviderResult{}, errors.New("provider returned no choices")
	}

	return model.ProviderResult{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// TestConnectivity probes the endpoint without persisting anything. Model
// listing is tried first; endpoints that don't implement /models get a
// minimal 5-token completion instead.
func (c *Client) TestConnectivity(ctx context.Context, baseURL, secret, modelName string) model.ConnectivityResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := newAPIClient(baseURL, secret)

	list, err := client.ListModels(ctx)
	if err == nil {
		available := make([]string, 0, len(list.Models))
		for _, m := range list.Models {
			available = append(available, m.ID)
		}
		if len(available) == 0 {
			available = []string{modelName}
		}
		return model.ConnectivityResult{OK: true, AvailableModels: available}
	}
	c.logger.Debug("model listing probe failed, falling back to completion", "base_url", baseURL, "error", err)

	_, err = client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     modelName,
		MaxTokens: 5,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		return model.ConnectivityResult{OK: false, Error: fmt.Sprintf("connectivity test failed: %v", err)}
	}
	return model.ConnectivityResult{OK: true, AvailableModels: []string{modelName}}
}

func newAPIClient(baseURL, secret string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(secret)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return goopenai.NewClientWithConfig(cfg)
}
