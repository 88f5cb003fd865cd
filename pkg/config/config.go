// Package config loads the process configuration from environment variables.
// Configuration is read once at startup and injected into the orchestrator;
// nothing here is mutable after load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/conclave-labs/conclave/pkg/roles"
)

// Default council when COUNCIL_MODELS is unset.
var defaultCouncilModels = []string{
	"openai/gpt-5.2",
	"google/gemini-3-pro-preview",
	"anthropic/claude-sonnet-4.5",
	"x-ai/grok-4.1-fast",
}

const defaultChairmanModel = "anthropic/claude-opus-4.5"

// CouncilMember pairs a model id with the role it answers under in Stage 1.
type CouncilMember struct {
	Model string
	Role  string
}

// RetryPolicy bounds stage-runner retries of transient/timeout failures.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Config is the full process configuration.
type Config struct {
	// Council composition
	Council          []CouncilMember
	ChairmanModel    string
	AdjudicatorModel string // empty = adjudication reuses the chairman model

	// Upstream gateway
	APIKey string
	APIURL string

	// Per-stage task deadlines
	Stage1Timeout time.Duration
	Stage2Timeout time.Duration
	Stage3Timeout time.Duration
	TitleTimeout  time.Duration

	Retry RetryPolicy

	// Boundary limits
	MaxPromptBytes int

	// Persistence
	PersistStorage    bool
	ConversationsFile string

	// HTTP surface
	HTTPPort         string
	CORSAllowOrigins []string
}

// LoadFromEnv builds a Config from environment variables, applying defaults
// and validating council composition. A missing API key is NOT an error here:
// the boundary reports it per-request with an explicit message.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ChairmanModel:     getEnvOrDefault("CHAIRMAN_MODEL", defaultChairmanModel),
		AdjudicatorModel:  os.Getenv("ADJUDICATOR_MODEL"),
		APIKey:            strings.TrimSpace(os.Getenv("MODEL_API_KEY")),
		APIURL:            os.Getenv("MODEL_API_URL"),
		Stage1Timeout:     getDurationOrDefault("STAGE1_TIMEOUT", 120*time.Second),
		Stage2Timeout:     getDurationOrDefault("STAGE2_TIMEOUT", 120*time.Second),
		Stage3Timeout:     getDurationOrDefault("STAGE3_TIMEOUT", 180*time.Second),
		TitleTimeout:      getDurationOrDefault("TITLE_TIMEOUT", 15*time.Second),
		MaxPromptBytes:    getIntOrDefault("MAX_PROMPT_BYTES", 64*1024),
		PersistStorage:    getBoolOrDefault("PERSIST_STORAGE", true),
		ConversationsFile: getEnvOrDefault("CONVERSATIONS_FILE", "data/conversations.db"),
		HTTPPort:          getEnvOrDefault("HTTP_PORT", "8080"),
		CORSAllowOrigins:  splitList(getEnvOrDefault("CORS_ALLOW_ORIGINS", "*")),
		Retry: RetryPolicy{
			MaxAttempts: getIntOrDefault("RETRY_MAX_ATTEMPTS", 3),
			BackoffBase: getDurationOrDefault("RETRY_BACKOFF_BASE", 500*time.Millisecond),
			BackoffCap:  getDurationOrDefault("RETRY_BACKOFF_CAP", 8*time.Second),
		},
	}

	models := splitList(os.Getenv("COUNCIL_MODELS"))
	if len(models) == 0 {
		models = defaultCouncilModels
	}
	roleNames := splitList(os.Getenv("COUNCIL_ROLES"))
	if len(roleNames) == 0 {
		roleNames = roles.CouncilRoles()
	}

	council, err := buildCouncil(models, roleNames)
	if err != nil {
		return nil, err
	}
	cfg.Council = council

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildCouncil pairs each model with a role. Roles cycle when fewer roles
// than models are configured.
func buildCouncil(models, roleNames []string) ([]CouncilMember, error) {
	if len(roleNames) == 0 {
		return nil, fmt.Errorf("COUNCIL_ROLES must not be empty")
	}
	for _, name := range roleNames {
		if !roles.Has(name) {
			return nil, fmt.Errorf("COUNCIL_ROLES contains unknown role %q (known: %s)",
				name, strings.Join(roles.Names(), ", "))
		}
	}
	council := make([]CouncilMember, len(models))
	for i, model := range models {
		council[i] = CouncilMember{
			Model: model,
			Role:  roleNames[i%len(roleNames)],
		}
	}
	return council, nil
}

func (c *Config) validate() error {
	if len(c.Council) == 0 {
		return fmt.Errorf("COUNCIL_MODELS must list at least one model")
	}
	// Anonymization labels answers A..Z.
	if len(c.Council) > 26 {
		return fmt.Errorf("COUNCIL_MODELS lists %d models; at most 26 are supported", len(c.Council))
	}
	if c.ChairmanModel == "" {
		return fmt.Errorf("CHAIRMAN_MODEL must not be empty")
	}
	if c.MaxPromptBytes <= 0 {
		return fmt.Errorf("MAX_PROMPT_BYTES must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// AdjudicatorOrChairman returns the model used for adjudication re-judging.
func (c *Config) AdjudicatorOrChairman() string {
	if c.AdjudicatorModel != "" {
		return c.AdjudicatorModel
	}
	return c.ChairmanModel
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
