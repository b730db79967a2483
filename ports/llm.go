package ports

import "context"

// UsageData represents raw usage data from LLM provider APIs
type UsageData struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// ChatRequest is a single system+user exchange with the text-generation collaborator
type ChatRequest struct {
	// Operation labels the call for metrics and usage accounting
	Operation string
	System    string
	Prompt    string
	// JSON asks the provider to constrain output to a JSON object
	JSON      bool
	MaxTokens int
}

// LLMResponse represents an LLM response with usage data
type LLMResponse struct {
	Content string
	Usage   *UsageData
}

// LLMClient interface for LLM providers
type LLMClient interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*LLMResponse, error)
}
