package model

// ProviderRequest is the payload forwarded to a downstream AI provider.
type ProviderRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// ProviderResult is the downstream provider's reply to a chat completion.
type ProviderResult struct {
	Content    string
	Model      string
	TokensUsed int
}

// ConnectivityResult reports a bounded-timeout probe against a provider
// endpoint. Nothing is persisted as part of a probe.
type ConnectivityResult struct {
	OK              bool
	AvailableModels []string
	Error           string
}
