package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AllenThomasDev/causal-webapp/models"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/tidwall/gjson"
)

// HTTP failure classes of the chat completions endpoint
var (
	ErrUnauthorized = errors.New("openai: unauthorized")
	ErrRateLimited  = errors.New("openai: rate limited")
	ErrServer       = errors.New("openai: server error")
	ErrBadRequest   = errors.New("openai: bad request")
)

// HTTPError carries the status and body of a failed completion request
type HTTPError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.kind }

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	default:
		return ErrBadRequest
	}
}

// Config configures the OpenAI adapter
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	SystemContext string
	Timeout       time.Duration
	Temperature   float64
	MaxTokens     int
}

// ConfigFromAI maps the application AI settings onto the adapter config
func ConfigFromAI(ai models.AIConfig) Config {
	return Config{
		APIKey:        ai.OpenAIKey,
		BaseURL:       ai.BaseURL,
		Model:         ai.OpenAIModel,
		SystemContext: ai.SystemContext,
		Timeout:       ai.Timeout,
		Temperature:   ai.Temperature,
		MaxTokens:     ai.MaxTokens,
	}
}

// NewClient creates an OpenAI-backed LLM client
func NewClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("missing model")
	}

	baseURL := strings.TrimSpace(config.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIClient{
		APIKey:        config.APIKey,
		BaseURL:       baseURL,
		Model:         config.Model,
		SystemContext: config.SystemContext,
		Temperature:   config.Temperature,
		MaxTokens:     config.MaxTokens,
		http:          &http.Client{Timeout: timeout},
	}, nil
}

// OpenAIClient implements ports.LLMClient for OpenAI chat completions
type OpenAIClient struct {
	APIKey        string
	BaseURL       string
	Model         string
	SystemContext string
	Temperature   float64
	MaxTokens     int
	http          *http.Client
}

var _ ports.LLMClient = (*OpenAIClient)(nil)

func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ports.ChatRequest) (*ports.LLMResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	system := req.System
	if system == "" {
		system = c.SystemContext
	}

	// one system + one user message
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type responseFormat struct {
		Type string `json:"type"`
	}
	type reqBody struct {
		Model          string          `json:"model"`
		Messages       []msg           `json:"messages"`
		Temperature    float64         `json:"temperature"`
		MaxTokens      int             `json:"max_tokens,omitempty"`
		ResponseFormat *responseFormat `json:"response_format,omitempty"`
	}
	body := reqBody{
		Model: c.Model,
		Messages: []msg{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: c.Temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSON {
		// json_object mode requires the word JSON somewhere in the messages
		if !strings.Contains(strings.ToLower(system+req.Prompt), "json") {
			body.Messages[0].Content = system + "\n\nRespond with valid JSON output."
		}
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respRaw), kind: classifyStatus(resp.StatusCode)}
	}

	return parseCompletion(respRaw, c.Model)
}

func parseCompletion(raw []byte, requestedModel string) (*ports.LLMResponse, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("openai response is not valid JSON")
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("openai response missing choices")
	}

	model := gjson.GetBytes(raw, "model").String()
	if model == "" {
		model = requestedModel
	}
	out := &ports.LLMResponse{Content: content.String()}
	if usage := gjson.GetBytes(raw, "usage"); usage.Exists() {
		out.Usage = &ports.UsageData{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
			Model:            model,
			Provider:         "openai",
		}
	}
	return out, nil
}

// MockLLMClient is a mock LLM client for testing. Responses are matched on
// ChatRequest.Operation, falling back to Response.
type MockLLMClient struct {
	Response  string            // Set this for testing
	Responses map[string]string // per-operation responses
	Error     error             // Set this to simulate errors
	Usage     *ports.UsageData

	mu       sync.Mutex
	Requests []ports.ChatRequest
}

func (m *MockLLMClient) ChatCompletion(ctx context.Context, req ports.ChatRequest) (*ports.LLMResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Error != nil {
		return nil, m.Error
	}
	if content, ok := m.Responses[req.Operation]; ok {
		return &ports.LLMResponse{Content: content, Usage: m.Usage}, nil
	}
	return &ports.LLMResponse{Content: m.Response, Usage: m.Usage}, nil
}

// Calls returns the number of requests seen so far
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
