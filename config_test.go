package irtsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validModelYAML = `roles:
  patient:
    provider: groq
    provider_type: openai_compatible
    model: llama-3.3-70b
    temperature: 0.9
    max_tokens: 512
    base_url: https://api.groq.com/openai/v1
    api_key_env: GROQ_API_KEY
  therapist:
    provider: ollama
    provider_type: ollama
    model: qwen2.5:14b
    temperature: 0.7
    max_tokens: 1024
  router:
    provider: gemini
    provider_type: google
    model: gemini-2.0-flash
    temperature: 0.0
    max_tokens: 16
    api_key_env: GEMINI_API_KEY
`

func TestLoadModelConfig(t *testing.T) {
	cfg, err := LoadModelConfig(writeModelConfig(t, validModelYAML))
	require.NoError(t, err)
	assert.Len(t, cfg.Roles, 3)
	assert.Equal(t, "llama-3.3-70b", cfg.Roles["patient"].Model)
	assert.Equal(t, 0.0, cfg.Roles["router"].Temperature)
}

func TestLoadModelConfigMissingFile(t *testing.T) {
	_, err := LoadModelConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsEmptyRoles(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, "roles: {}\n"))
	assert.Error(t, err)
}

func TestValidateRejectsMissingModel(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, `roles:
  patient:
    provider_type: ollama
    temperature: 0.5
    max_tokens: 100
`))
	assert.ErrorContains(t, err, "model is required")
}

func TestValidateRejectsBadTemperature(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, `roles:
  patient:
    provider_type: ollama
    model: x
    temperature: 3.5
    max_tokens: 100
`))
	assert.ErrorContains(t, err, "temperature")
}

func TestValidateRejectsMissingAPIKeyEnv(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, `roles:
  patient:
    provider_type: openai_compatible
    model: x
    temperature: 0.5
    max_tokens: 100
`))
	assert.ErrorContains(t, err, "api_key_env")
}

func TestValidateRejectsUnknownProviderType(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, `roles:
  patient:
    provider_type: carrier_pigeon
    model: x
    temperature: 0.5
    max_tokens: 100
`))
	assert.ErrorContains(t, err, "provider type")
}

func TestGeneratorForOllama(t *testing.T) {
	cfg, err := LoadModelConfig(writeModelConfig(t, validModelYAML))
	require.NoError(t, err)

	gen, err := cfg.GeneratorFor("therapist")
	require.NoError(t, err)
	assert.IsType(t, &OllamaGenerator{}, gen)
}

func TestGeneratorForMissingEnvKey(t *testing.T) {
	cfg, err := LoadModelConfig(writeModelConfig(t, validModelYAML))
	require.NoError(t, err)

	t.Setenv("GROQ_API_KEY", "")
	_, err = cfg.GeneratorFor("patient")
	assert.ErrorContains(t, err, "GROQ_API_KEY")
}

func TestGeneratorForWithEnvKey(t *testing.T) {
	cfg, err := LoadModelConfig(writeModelConfig(t, validModelYAML))
	require.NoError(t, err)

	t.Setenv("GROQ_API_KEY", "test-key")
	gen, err := cfg.GeneratorFor("patient")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)
}

func TestGeneratorForUnknownRole(t *testing.T) {
	cfg, err := LoadModelConfig(writeModelConfig(t, validModelYAML))
	require.NoError(t, err)

	_, err = cfg.GeneratorFor("narrator")
	assert.ErrorContains(t, err, "narrator")
}
