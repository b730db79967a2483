package ai

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AllenThomasDev/causal-webapp/internal"
)

// Prompt template names
const (
	PromptMetadataToJSON   = "metadata_to_json"
	PromptInferRoles       = "infer_roles"
	PromptSuggestQuestions = "suggest_questions"
	PromptExplainEstimate  = "explain_estimate"
)

//go:embed prompts/*.txt
var embeddedPrompts embed.FS

// Global map to track initialized prompt directories (to avoid duplicate logs)
var (
	initializedDirs   = make(map[string]bool)
	initializedDirsMu sync.Mutex
)

// PromptManager loads {PLACEHOLDER} templates, preferring PromptsDir over the embedded set
type PromptManager struct {
	PromptsDir string
	logger     *internal.Logger
}

// NewPromptManager creates a prompt manager. An empty directory uses only the embedded templates.
func NewPromptManager(promptsDir string, logger *internal.Logger) *PromptManager {
	logger = internal.OrDefault(logger)

	// Only log initialization once per directory
	initializedDirsMu.Lock()
	if promptsDir != "" && !initializedDirs[promptsDir] {
		initializedDirs[promptsDir] = true
		logger.Debug("[PromptManager] Initialized for directory: %s", promptsDir)
	}
	initializedDirsMu.Unlock()

	return &PromptManager{PromptsDir: promptsDir, logger: logger}
}

// LoadPrompt loads a prompt template by name
func (pm *PromptManager) LoadPrompt(name string) (string, error) {
	if pm.PromptsDir != "" {
		path := filepath.Join(pm.PromptsDir, name+".txt")
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
		}
		pm.logger.Trace("[PromptManager] %s not in %s, using embedded template", name, pm.PromptsDir)
	}

	content, err := fs.ReadFile(embeddedPrompts, "prompts/"+name+".txt")
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	return string(content), nil
}

// RenderPrompt replaces {PLACEHOLDER} with values
func (pm *PromptManager) RenderPrompt(name string, replacements map[string]string) (string, error) {
	template, err := pm.LoadPrompt(name)
	if err != nil {
		return "", err
	}

	result := template
	for placeholder, value := range replacements {
		placeholderKey := "{" + placeholder + "}"
		result = strings.ReplaceAll(result, placeholderKey, value)
	}

	return result, nil
}
