package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/internal/errors"
	"github.com/AllenThomasDev/causal-webapp/models"
)

// Config represents the complete application configuration
type Config struct {
	AI         models.AIConfig
	Estimation EstimationConfig
	Refutation RefutationConfig
	Database   DatabaseConfig
	LogLevel   string
}

// EstimationConfig holds identification and propensity weighting settings
type EstimationConfig struct {
	ProceedWhenUnidentifiable bool
	PropensityClip            float64
	WeightingScheme           causal.WeightingScheme
	MinEffectiveSampleSize    float64
	MaxClippedFraction        float64
}

// RefutationConfig holds robustness check settings
type RefutationConfig struct {
	Seed           int64
	Simulations    int
	SubsetFraction float64
	Concurrency    int
}

// DatabaseConfig holds the optional run ledger connection. An empty URL disables the ledger.
type DatabaseConfig struct {
	URL string
}

// Enabled reports whether a ledger database is configured
func (d DatabaseConfig) Enabled() bool { return strings.TrimSpace(d.URL) != "" }

// Load reads configuration from environment variables and validates it.
// The API key is only required when requireAI is set; data-only commands run without it.
func Load(requireAI bool) (*Config, error) {
	config := &Config{}

	aiConfig, err := loadAIConfig(requireAI)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AI configuration")
	}
	config.AI = *aiConfig

	estimation, err := loadEstimationConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load estimation configuration")
	}
	config.Estimation = *estimation

	config.Refutation = *loadRefutationConfig()
	config.Database = DatabaseConfig{URL: os.Getenv("DATABASE_URL")}
	config.LogLevel = getEnvOrDefault("LOG_LEVEL", "INFO")

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is present
func Default() *Config {
	return &Config{
		AI:         *models.DefaultAIConfig(),
		Estimation: DefaultEstimationConfig(),
		Refutation: DefaultRefutationConfig(),
		LogLevel:   "INFO",
	}
}

// DefaultEstimationConfig mirrors the estimator defaults
func DefaultEstimationConfig() EstimationConfig {
	return EstimationConfig{
		ProceedWhenUnidentifiable: true,
		PropensityClip:            1e-3,
		WeightingScheme:           causal.SchemeIPSStabilized,
		MinEffectiveSampleSize:    2,
		MaxClippedFraction:        0.5,
	}
}

// DefaultRefutationConfig mirrors the refuter defaults
func DefaultRefutationConfig() RefutationConfig {
	return RefutationConfig{
		Seed:           42,
		Simulations:    100,
		SubsetFraction: 0.9,
		Concurrency:    4,
	}
}

func loadAIConfig(requireAI bool) (*models.AIConfig, error) {
	ai := models.DefaultAIConfig()
	if requireAI && ai.OpenAIKey == "" {
		return nil, errors.ConfigInvalid("OPENAI_API_KEY is required")
	}
	ai.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", ai.BaseURL)
	ai.Timeout = getEnvDurationOrDefault("LLM_TIMEOUT", ai.Timeout)
	ai.PromptsDir = os.Getenv("PROMPTS_DIR")
	return ai, nil
}

func loadEstimationConfig() (*EstimationConfig, error) {
	def := DefaultEstimationConfig()
	scheme, err := causal.ParseWeightingScheme(getEnvOrDefault("WEIGHTING_SCHEME", string(def.WeightingScheme)))
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	return &EstimationConfig{
		ProceedWhenUnidentifiable: getEnvBoolOrDefault("PROCEED_WHEN_UNIDENTIFIABLE", def.ProceedWhenUnidentifiable),
		PropensityClip:            getEnvFloatOrDefault("PROPENSITY_CLIP", def.PropensityClip),
		WeightingScheme:           scheme,
		MinEffectiveSampleSize:    getEnvFloatOrDefault("MIN_EFFECTIVE_SAMPLE_SIZE", def.MinEffectiveSampleSize),
		MaxClippedFraction:        getEnvFloatOrDefault("MAX_CLIPPED_FRACTION", def.MaxClippedFraction),
	}, nil
}

func loadRefutationConfig() *RefutationConfig {
	def := DefaultRefutationConfig()
	return &RefutationConfig{
		Seed:           int64(getEnvIntOrDefault("REFUTE_SEED", int(def.Seed))),
		Simulations:    getEnvIntOrDefault("REFUTE_SIMULATIONS", def.Simulations),
		SubsetFraction: getEnvFloatOrDefault("REFUTE_SUBSET_FRACTION", def.SubsetFraction),
		Concurrency:    getEnvIntOrDefault("REFUTE_CONCURRENCY", def.Concurrency),
	}
}

func validateConfig(config *Config) error {
	if clip := config.Estimation.PropensityClip; clip <= 0 || clip >= 0.5 {
		return errors.ConfigInvalid("PROPENSITY_CLIP must be in (0, 0.5)")
	}
	if f := config.Estimation.MaxClippedFraction; f <= 0 || f > 1 {
		return errors.ConfigInvalid("MAX_CLIPPED_FRACTION must be in (0, 1]")
	}
	if config.Refutation.Simulations < 1 {
		return errors.ConfigInvalid("REFUTE_SIMULATIONS must be at least 1")
	}
	if f := config.Refutation.SubsetFraction; f <= 0 || f > 1 {
		return errors.ConfigInvalid("REFUTE_SUBSET_FRACTION must be in (0, 1]")
	}
	if config.Refutation.Concurrency < 1 {
		return errors.ConfigInvalid("REFUTE_CONCURRENCY must be at least 1")
	}
	if config.AI.Timeout <= 0 {
		return errors.ConfigInvalid("LLM_TIMEOUT must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
