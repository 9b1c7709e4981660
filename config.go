package irtsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider API families.
const (
	ProviderTypeOpenAICompatible = "openai_compatible"
	ProviderTypeGoogle           = "google"
	ProviderTypeOllama           = "ollama"
)

// RoleConfig describes the LLM backing one agent role.
type RoleConfig struct {
	Provider     string  `yaml:"provider"`      // e.g. "groq", "openai", "gemini", "ollama"
	ProviderType string  `yaml:"provider_type"` // openai_compatible | google | ollama
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	BaseURL      string  `yaml:"base_url,omitempty"`
	APIKeyEnv    string  `yaml:"api_key_env,omitempty"` // env var holding the key
	Host         string  `yaml:"host,omitempty"`        // ollama only
}

// ModelConfig maps agent roles (patient, therapist, router, judge) to their
// provider settings. Loaded once at startup and injected explicitly; there
// is no process-wide registry.
type ModelConfig struct {
	Roles map[string]RoleConfig `yaml:"roles"`
}

// LoadModelConfig reads and validates a models YAML file. Configuration
// mistakes fail fast here rather than surfacing mid-session.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}

	var cfg ModelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every role entry for structural mistakes.
func (c *ModelConfig) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("no roles configured")
	}
	for role, rc := range c.Roles {
		if rc.Model == "" {
			return fmt.Errorf("role %q: model is required", role)
		}
		if rc.Temperature < 0 || rc.Temperature > 2 {
			return fmt.Errorf("role %q: temperature must be in [0,2], got %g", role, rc.Temperature)
		}
		if rc.MaxTokens < 1 {
			return fmt.Errorf("role %q: max_tokens must be positive, got %d", role, rc.MaxTokens)
		}
		switch rc.ProviderType {
		case ProviderTypeOpenAICompatible, ProviderTypeGoogle:
			if rc.APIKeyEnv == "" {
				return fmt.Errorf("role %q: api_key_env is required for provider type %q", role, rc.ProviderType)
			}
		case ProviderTypeOllama:
			// local, no key
		default:
			return fmt.Errorf("role %q: unknown provider type %q", role, rc.ProviderType)
		}
	}
	return nil
}

// GeneratorFor builds the Generator for a role. Unknown roles and missing
// API keys are configuration errors, reported immediately.
func (c *ModelConfig) GeneratorFor(role string) (Generator, error) {
	rc, ok := c.Roles[role]
	if !ok {
		return nil, fmt.Errorf("no model configured for role %q", role)
	}

	switch rc.ProviderType {
	case ProviderTypeOpenAICompatible:
		key := os.Getenv(rc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("role %q: environment variable %s is not set", role, rc.APIKeyEnv)
		}
		return NewOpenAIGenerator(key, rc.Model, rc.BaseURL, rc.Temperature, rc.MaxTokens)
	case ProviderTypeGoogle:
		key := os.Getenv(rc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("role %q: environment variable %s is not set", role, rc.APIKeyEnv)
		}
		return NewGeminiGenerator(key, rc.Model, rc.Temperature, rc.MaxTokens)
	case ProviderTypeOllama:
		var opts []OllamaGenOption
		if rc.Host != "" {
			opts = append(opts, WithOllamaGenHost(rc.Host))
		}
		return NewOllamaGenerator(rc.Model, rc.Temperature, rc.MaxTokens, opts...), nil
	default:
		return nil, fmt.Errorf("role %q: unknown provider type %q", role, rc.ProviderType)
	}
}
