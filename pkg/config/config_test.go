package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 3, cfg.Workflow.MaxRevisions)
	assert.Len(t, cfg.Models.Generators, 9)
	assert.Equal(t, "openai/gpt-4o", cfg.Models.Generators[0].Label())
	assert.Equal(t, "mistral/mistral-large-latest", cfg.Models.Generators[8].Label())
	assert.Equal(t, "anthropic", cfg.Models.Aggregator.Provider)
	assert.Equal(t, "google/gemini-1.5-pro", cfg.Models.ChallengerC.Label())
	assert.Equal(t, 0.2, cfg.Models.ChallengerTemperature)
	assert.Equal(t, 0.0, cfg.Models.GeneratorTemperature)
	assert.Equal(t, 60*time.Second, cfg.Models.RequestTimeout)
	assert.Equal(t, "results", cfg.Output.Dir)
	assert.Equal(t, "iot_security", cfg.KB.Collection)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAX_REVISIONS", "5")
	t.Setenv("LLM_REQUEST_TIMEOUT", "30s")
	t.Setenv("CHALLENGER_TEMPERATURE", "0.5")
	t.Setenv("GENERATOR_MODELS_WITH_PROVIDERS", "openai:gpt-4o,anthropic:claude-3-opus-20240229")
	t.Setenv("OUTPUT_DIR", "out")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workflow.MaxRevisions)
	assert.Equal(t, 30*time.Second, cfg.Models.RequestTimeout)
	assert.Equal(t, 0.5, cfg.Models.ChallengerTemperature)
	require.Len(t, cfg.Models.Generators, 2)
	assert.Equal(t, "anthropic/claude-3-opus-20240229", cfg.Models.Generators[1].Label())
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestEnvExplicitZeroesSurviveDefaults(t *testing.T) {
	t.Setenv("MAX_REVISIONS", "0")
	t.Setenv("CHALLENGER_TEMPERATURE", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Workflow.MaxRevisions, "an explicit zero disables revisions")
	assert.Equal(t, 0.0, cfg.Models.ChallengerTemperature)
}

func TestTimeoutAcceptsBareSeconds(t *testing.T) {
	t.Setenv("LLM_REQUEST_TIMEOUT", "90")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Models.RequestTimeout)
}

func TestLoadYAMLWithExpansion(t *testing.T) {
	t.Setenv("TEST_MAX_REV", "2")
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	data := `
workflow:
  max_revisions: ${TEST_MAX_REV}
models:
  aggregator:
    provider: openai
    model: gpt-4o
output:
  dir: custom-results
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workflow.MaxRevisions)
	assert.Equal(t, "openai/gpt-4o", cfg.Models.Aggregator.Label())
	assert.Equal(t, "custom-results", cfg.Output.Dir)
	// untouched slots keep their defaults
	assert.Len(t, cfg.Models.Generators, 9)
}

func TestLoadYAMLZeroMaxRevisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_revisions: 0\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Workflow.MaxRevisions)
}

func TestValidateRejectsBadTemperature(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Models.ChallengerTemperature = 3.0
	assert.Error(t, cfg.Validate())
}

func TestParseCouncil(t *testing.T) {
	specs, err := ParseCouncil("openai:gpt-4o, groq:llama-3.3-70b-versatile")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, ModelSpec{Provider: "groq", Model: "llama-3.3-70b-versatile"}, specs[1])

	_, err = ParseCouncil("gpt-4o")
	assert.Error(t, err)

	_, err = ParseCouncil("warpdrive:model-x")
	assert.Error(t, err, "unknown provider family")

	_, err = ParseCouncil(" , ")
	assert.Error(t, err)
}

func TestParseCouncilDeclaredFallback(t *testing.T) {
	specs, err := ParseCouncil("anthropic:claude-3-opus-20240229->openai:gpt-4o, openai:gpt-4o")
	require.NoError(t, err)
	require.Len(t, specs, 2)

	fb := specs[0].DeclaredFallback()
	require.NotNil(t, fb)
	assert.Equal(t, "openai/gpt-4o", fb.Label())
	assert.Nil(t, specs[1].DeclaredFallback())

	_, err = ParseCouncil("anthropic:claude-3-opus-20240229->warpdrive:model-x")
	assert.Error(t, err, "unknown fallback provider family")
}

func TestDefaultCouncilDeclaredFallbacks(t *testing.T) {
	council := DefaultCouncil()
	for _, spec := range council[:3] {
		assert.Nil(t, spec.DeclaredFallback(), "openai slots declare no fallback: %s", spec.Label())
	}
	for _, spec := range council[3:] {
		fb := spec.DeclaredFallback()
		require.NotNil(t, fb, spec.Label())
		assert.Equal(t, "openai/gpt-4o", fb.Label())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CONCLAVE_TEST_VAL", "hello")

	assert.Equal(t, "hello", expandEnvVars("${CONCLAVE_TEST_VAL}"))
	assert.Equal(t, "hello", expandEnvVars("$CONCLAVE_TEST_VAL"))
	assert.Equal(t, "fallback", expandEnvVars("${CONCLAVE_TEST_UNSET:-fallback}"))
	assert.Equal(t, "", expandEnvVars("${CONCLAVE_TEST_UNSET}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestGetProviderAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gk")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("GOOGLE_API_KEY", "")

	assert.Equal(t, "gk", GetProviderAPIKey("groq"))
	assert.Equal(t, "gem", GetProviderAPIKey("google"), "falls back to GEMINI_API_KEY")
	assert.Equal(t, "", GetProviderAPIKey("unknown"))
}
