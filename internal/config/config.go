// Package config loads agent configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultProvider = "openai"
	DefaultModel    = "gemini-3-pro-preview"
	DefaultListen   = ":8000"

	DefaultMaxSteps              = 3
	DefaultLLMTimeoutSec         = 120
	DefaultExecTimeoutSec        = 120
	DefaultPromptStdoutLimit     = 1500
	DefaultPromptStderrLimit     = 1000
	DefaultTranscriptOutputLimit = 800
	DefaultDNSCacheTTLSec        = 300
)

// Config holds all configuration for the agent and its server.
type Config struct {
	// Reasoning engine
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	LLMTimeoutSec int
	InsecureTLS   bool

	// Investigation loop
	MaxSteps              int
	ExecTimeoutSec        int
	PromptStdoutLimit     int
	PromptStderrLimit     int
	TranscriptOutputLimit int

	// Server
	Listen         string
	MetricsListen  string
	APIToken       string
	PolicyFile     string
	DNSCacheTTLSec int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. A .env file is loaded
// if present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxSteps, err := envOrDefaultInt("SLEUTH_MAX_STEPS", DefaultMaxSteps)
	if err != nil {
		return nil, err
	}
	llmTimeout, err := envOrDefaultInt("LLM_TIMEOUT", DefaultLLMTimeoutSec)
	if err != nil {
		return nil, err
	}
	execTimeout, err := envOrDefaultInt("SLEUTH_EXEC_TIMEOUT", DefaultExecTimeoutSec)
	if err != nil {
		return nil, err
	}
	stdoutLimit, err := envOrDefaultInt("SLEUTH_PROMPT_STDOUT_LIMIT", DefaultPromptStdoutLimit)
	if err != nil {
		return nil, err
	}
	stderrLimit, err := envOrDefaultInt("SLEUTH_PROMPT_STDERR_LIMIT", DefaultPromptStderrLimit)
	if err != nil {
		return nil, err
	}
	transcriptLimit, err := envOrDefaultInt("SLEUTH_TRANSCRIPT_OUTPUT_LIMIT", DefaultTranscriptOutputLimit)
	if err != nil {
		return nil, err
	}
	dnsCacheTTL, err := envOrDefaultInt("SLEUTH_DNS_CACHE_TTL", DefaultDNSCacheTTLSec)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Provider:      envOrDefault("LLM_PROVIDER", DefaultProvider),
		APIKey:        strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		BaseURL:       strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
		Model:         envOrDefault("LLM_MODEL", DefaultModel),
		LLMTimeoutSec: llmTimeout,
		InsecureTLS:   envBoolDefault("LLM_TLS_INSECURE", false),

		MaxSteps:              maxSteps,
		ExecTimeoutSec:        execTimeout,
		PromptStdoutLimit:     stdoutLimit,
		PromptStderrLimit:     stderrLimit,
		TranscriptOutputLimit: transcriptLimit,

		Listen:         envOrDefault("SLEUTH_LISTEN", DefaultListen),
		MetricsListen:  strings.TrimSpace(os.Getenv("SLEUTH_METRICS_LISTEN")),
		APIToken:       strings.TrimSpace(os.Getenv("SLEUTH_API_TOKEN")),
		PolicyFile:     strings.TrimSpace(os.Getenv("SLEUTH_POLICY_FILE")),
		DNSCacheTTLSec: dnsCacheTTL,

		LogLevel:  envOrDefault("SLEUTH_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("SLEUTH_LOG_FORMAT", "auto"),
	}

	return cfg, nil
}

// GetMaxSteps returns the command budget per investigation.
func (c *Config) GetMaxSteps() int {
	if c.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	// Clamp to reasonable range (1-25)
	if c.MaxSteps > 25 {
		return 25
	}
	return c.MaxSteps
}

// GetLLMTimeout returns the per-request reasoning engine timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	if c.LLMTimeoutSec <= 0 {
		return DefaultLLMTimeoutSec * time.Second
	}
	// Clamp to reasonable range (10-600 seconds)
	if c.LLMTimeoutSec < 10 {
		return 10 * time.Second
	}
	if c.LLMTimeoutSec > 600 {
		return 600 * time.Second
	}
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// GetExecTimeout returns the wall clock limit for one shell command.
func (c *Config) GetExecTimeout() time.Duration {
	if c.ExecTimeoutSec <= 0 {
		return DefaultExecTimeoutSec * time.Second
	}
	// Clamp to reasonable range (5-3600 seconds)
	if c.ExecTimeoutSec < 5 {
		return 5 * time.Second
	}
	if c.ExecTimeoutSec > 3600 {
		return 3600 * time.Second
	}
	return time.Duration(c.ExecTimeoutSec) * time.Second
}

// GetPromptStdoutLimit returns the stdout rune cap for context messages.
func (c *Config) GetPromptStdoutLimit() int {
	return clampLimit(c.PromptStdoutLimit, DefaultPromptStdoutLimit)
}

// GetPromptStderrLimit returns the stderr rune cap for context messages.
func (c *Config) GetPromptStderrLimit() int {
	return clampLimit(c.PromptStderrLimit, DefaultPromptStderrLimit)
}

// GetTranscriptOutputLimit returns the per-step output cap in the transcript.
func (c *Config) GetTranscriptOutputLimit() int {
	return clampLimit(c.TranscriptOutputLimit, DefaultTranscriptOutputLimit)
}

// GetDNSCacheTTL returns the refresh interval for the shared DNS cache.
func (c *Config) GetDNSCacheTTL() time.Duration {
	if c.DNSCacheTTLSec <= 0 {
		return DefaultDNSCacheTTLSec * time.Second
	}
	// Clamp to reasonable range (30-3600 seconds)
	if c.DNSCacheTTLSec < 30 {
		return 30 * time.Second
	}
	if c.DNSCacheTTLSec > 3600 {
		return 3600 * time.Second
	}
	return time.Duration(c.DNSCacheTTLSec) * time.Second
}

func clampLimit(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	// Clamp to reasonable range (100-100000)
	if v < 100 {
		return 100
	}
	if v > 100000 {
		return 100000
	}
	return v
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envBoolDefault(key string, fallback bool) bool {
	if v, ok := envBool(key); ok {
		return v
	}
	return fallback
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
