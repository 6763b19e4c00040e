package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "okapi.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 60*time.Second, cfg.ToolTimeout)
	assert.Empty(t, cfg.ProviderPriority)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("OKAPI_LISTEN_ADDR", ":9999")
	t.Setenv("OKAPI_MAX_ITERATIONS", "25")
	t.Setenv("OKAPI_LLM_TIMEOUT", "45s")
	t.Setenv("OKAPI_PROVIDER_PRIORITY", "ollama, openai ,gemini")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, []string{"ollama", "openai", "gemini"}, cfg.ProviderPriority)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OKAPI_MAX_ITERATIONS", "not-a-number")
	t.Setenv("OKAPI_LLM_TIMEOUT", "-5s")

	cfg := Load()

	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
}
