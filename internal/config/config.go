// Package config holds the explicit configuration object for the analysis
// pipeline. Core logic never reads ambient process state; environment
// fallback happens only in Detect, at the edge.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names for the reasoning backend.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Descriptor error policies: what Present does with a failing chart/table.
const (
	DescriptorErrorDrop        = "drop"
	DescriptorErrorPlaceholder = "placeholder"
)

// ProviderConfig selects and configures the external reasoning capability.
type ProviderConfig struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, openai
	APIKey   string `json:"api_key" yaml:"api_key"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Timeout  string `json:"timeout" yaml:"timeout"` // Go duration string, e.g. "120s"
}

// TimeoutOrDefault parses the configured timeout, defaulting to two minutes.
func (p ProviderConfig) TimeoutOrDefault() time.Duration {
	if p.Timeout == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// PipelinePolicy holds the tunable degradation knobs of the controller.
type PipelinePolicy struct {
	// DefaultIntent is used when classification fails or returns an unknown
	// tag. The permissive default prefers "needs analysis" over "trivial
	// query" when uncertain.
	DefaultIntent string `json:"default_intent" yaml:"default_intent"`

	// OnDescriptorError controls whether a failing chart/table descriptor is
	// dropped or replaced with a visible error placeholder.
	OnDescriptorError string `json:"on_descriptor_error" yaml:"on_descriptor_error"`

	// ExecutionTimeout bounds a single sandbox run. Exceeding it is an
	// execution failure (triggers fallback), never a process error.
	ExecutionTimeout string `json:"execution_timeout" yaml:"execution_timeout"`

	// MaxCharts caps the number of chart descriptors requested per response.
	MaxCharts int `json:"max_charts" yaml:"max_charts"`
}

// ExecutionTimeoutOrDefault parses the sandbox timeout, defaulting to 30s.
func (p PipelinePolicy) ExecutionTimeoutOrDefault() time.Duration {
	if p.ExecutionTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(p.ExecutionTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig mirrors the logging package's file-based configuration.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
	Level      string          `json:"level" yaml:"level"`
	JSONFormat bool            `json:"json_format" yaml:"json_format"`
}

// Config is the root configuration object passed into constructors.
type Config struct {
	Reasoning ProviderConfig `json:"reasoning" yaml:"reasoning"`
	Policy    PipelinePolicy `json:"policy" yaml:"policy"`
	Logging   LoggingConfig  `json:"logging" yaml:"logging"`
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		Reasoning: ProviderConfig{
			Provider: ProviderGemini,
			Timeout:  "120s",
		},
		Policy: PipelinePolicy{
			DefaultIntent:     "statistical",
			OnDescriptorError: DescriptorErrorDrop,
			ExecutionTimeout:  "30s",
			MaxCharts:         3,
		},
	}
}

// DefaultPath returns the default config file location under the workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".gridsense", "config.json")
}

// Load reads a config file. JSON and YAML are both accepted, keyed off the
// file extension. Missing file returns the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Reasoning.Provider {
	case "", ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider: %s (valid: %s, %s)",
			c.Reasoning.Provider, ProviderGemini, ProviderOpenAI)
	}

	switch c.Policy.OnDescriptorError {
	case "", DescriptorErrorDrop, DescriptorErrorPlaceholder:
	default:
		return fmt.Errorf("unknown on_descriptor_error policy: %s (valid: %s, %s)",
			c.Policy.OnDescriptorError, DescriptorErrorDrop, DescriptorErrorPlaceholder)
	}

	switch c.Policy.DefaultIntent {
	case "", "visualization", "transformation", "statistical", "query":
	default:
		return fmt.Errorf("unknown default_intent: %s", c.Policy.DefaultIntent)
	}

	if c.Policy.MaxCharts < 0 {
		return fmt.Errorf("max_charts must be >= 0, got %d", c.Policy.MaxCharts)
	}
	return nil
}

// Detect loads the workspace config and falls back to environment variables
// for the API key only. Priority: config file > GEMINI_API_KEY > OPENAI_API_KEY.
func Detect(workspace string) (*Config, error) {
	cfg, err := Load(DefaultPath(workspace))
	if err != nil {
		return nil, err
	}

	if cfg.Reasoning.APIKey != "" {
		return cfg, nil
	}

	envProviders := []struct {
		envVar   string
		provider string
	}{
		{"GEMINI_API_KEY", ProviderGemini},
		{"OPENAI_API_KEY", ProviderOpenAI},
	}
	for _, p := range envProviders {
		if key := os.Getenv(p.envVar); key != "" {
			cfg.Reasoning.Provider = p.provider
			cfg.Reasoning.APIKey = key
			return cfg, nil
		}
	}

	return nil, fmt.Errorf("no API key found; configure %s or set GEMINI_API_KEY or OPENAI_API_KEY",
		DefaultPath(workspace))
}
