package models

import (
	"os"
	"strconv"
	"time"
)

// AIConfig holds text-generation service configuration
type AIConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	BaseURL       string
	SystemContext string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	PromptsDir    string // Optional directory overriding the embedded prompt templates
}

// DefaultAIConfig returns sensible defaults for AI configuration
func DefaultAIConfig() *AIConfig {
	config := &AIConfig{
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   "gpt-4o-mini",
		BaseURL:       "https://api.openai.com/v1",
		SystemContext: "You are a careful causal inference assistant. Output exactly what the user asks for.",
		MaxTokens:     1500,
		Temperature:   0,
		Timeout:       60 * time.Second,
	}

	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.OpenAIModel = model
	}

	if maxTokensStr := os.Getenv("LLM_MAX_TOKENS"); maxTokensStr != "" {
		if maxTokens, err := strconv.Atoi(maxTokensStr); err == nil {
			config.MaxTokens = maxTokens
		}
	}

	if tempStr := os.Getenv("LLM_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 64); err == nil {
			config.Temperature = temp
		}
	}

	return config
}
