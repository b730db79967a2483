package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/ports"
)

// CallObserver is notified after every collaborator call, successful or not
type CallObserver interface {
	ObserveCall(ctx context.Context, operation string, usage *ports.UsageData, elapsed time.Duration, err error)
}

// Completer sends a rendered prompt template and returns the raw reply
type Completer interface {
	Complete(ctx context.Context, operation, promptName string, replacements map[string]string, jsonMode bool) (string, error)
}

// Caller renders prompt templates and sends them to the text-generation collaborator
type Caller struct {
	LLM           ports.LLMClient
	PromptManager *PromptManager
	SystemContext string
	Observers     []CallObserver
	logger        *internal.Logger
}

var _ Completer = (*Caller)(nil)

// NewCaller wires an LLM client to a prompt manager
func NewCaller(client ports.LLMClient, prompts *PromptManager, systemContext string, logger *internal.Logger, observers ...CallObserver) *Caller {
	return &Caller{
		LLM:           client,
		PromptManager: prompts,
		SystemContext: systemContext,
		Observers:     observers,
		logger:        internal.OrDefault(logger),
	}
}

// Complete renders promptName and returns the raw reply content
func (c *Caller) Complete(ctx context.Context, operation, promptName string, replacements map[string]string, jsonMode bool) (string, error) {
	if c.LLM == nil {
		return "", fmt.Errorf("%s request failed: no text-generation client configured", operation)
	}
	c.logger.Debug("[StructuredClient] Loading prompt template: %s (%d replacements)", promptName, len(replacements))

	prompt, err := c.PromptManager.RenderPrompt(promptName, replacements)
	if err != nil {
		c.logger.Error("[StructuredClient] Failed to load/render prompt %s: %v", promptName, err)
		return "", fmt.Errorf("failed to load/render prompt: %w", err)
	}

	c.logger.Trace("[StructuredClient] Sending %s request - promptLength=%d, json=%t", operation, len(prompt), jsonMode)

	start := time.Now()
	resp, err := c.LLM.ChatCompletion(ctx, ports.ChatRequest{
		Operation: operation,
		System:    c.SystemContext,
		Prompt:    prompt,
		JSON:      jsonMode,
	})
	elapsed := time.Since(start)

	var usage *ports.UsageData
	if resp != nil {
		usage = resp.Usage
	}
	for _, o := range c.Observers {
		o.ObserveCall(ctx, operation, usage, elapsed, err)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("request timeout after %v: %w", elapsed.Round(time.Millisecond), err)
		}
		return "", fmt.Errorf("%s request failed: %w", operation, err)
	}

	c.logger.Debug("[StructuredClient] %s reply: %d bytes in %v", operation, len(resp.Content), elapsed.Round(time.Millisecond))
	return resp.Content, nil
}

// StructuredClient provides typed JSON responses from LLM calls
type StructuredClient[T any] struct {
	llm    Completer
	logger *internal.Logger
}

// NewStructuredClient creates a typed client sharing the completer's transport
func NewStructuredClient[T any](llm Completer, logger *internal.Logger) *StructuredClient[T] {
	return &StructuredClient[T]{llm: llm, logger: internal.OrDefault(logger)}
}

// GetJSONResponse renders promptName, requests JSON output and decodes it into T
func (client *StructuredClient[T]) GetJSONResponse(ctx context.Context, operation, promptName string, replacements map[string]string) (*T, error) {
	content, err := client.llm.Complete(ctx, operation, promptName, replacements, true)
	if err != nil {
		return nil, err
	}

	result, err := DecodeJSON[T](content)
	if err != nil {
		client.logger.Warn("[StructuredClient] Failed to decode %s reply: %v", operation, err)
		return nil, err
	}
	return result, nil
}

// DecodeJSON strips markdown fences and chatter, then strictly decodes a single JSON value into T.
// Any failure wraps core.ErrMalformedResponse.
func DecodeJSON[T any](content string) (*T, error) {
	cleaned := cleanJSONContent(content)
	if cleaned == "" {
		return nil, core.NewMalformedResponseError("json", "empty reply")
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var result T
	if err := dec.Decode(&result); err != nil {
		return nil, core.NewMalformedResponseError("json", err.Error())
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, core.NewMalformedResponseError("json", "trailing content after JSON value: "+err.Error())
		}
		return nil, core.NewMalformedResponseError("json", fmt.Sprintf("trailing content after JSON value: %v", tok))
	}
	return &result, nil
}

// cleanJSONContent removes markdown code blocks and leading chatter
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	// Remove markdown code blocks with various prefixes
	if strings.HasPrefix(content, "```json") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Chatter is only dropped ahead of the first line that opens the JSON value
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
		if trimmed != "" && !isChatter(trimmed) {
			break
		}
	}
	return content
}

func isChatter(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "here is") ||
		strings.HasPrefix(lower, "here's") ||
		strings.HasPrefix(lower, "the json") ||
		strings.HasPrefix(lower, "output:") ||
		strings.HasPrefix(lower, "response:") ||
		strings.HasPrefix(lower, "##") ||
		strings.Contains(lower, "below is") ||
		strings.Contains(lower, "following is")
}
