package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds kernel settings loaded from environment variables.
// Every field has a sensible default so the kernel boots with no env at all
// (it will just have no providers registered until keys are supplied).
type Config struct {
	ListenAddr    string
	DBPath        string
	MaxIterations int
	LLMTimeout    time.Duration
	ToolTimeout   time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaURL     string
	GeminiAPIKey  string

	// ProviderPriority orders automatic failover, highest first.
	ProviderPriority []string

	SandboxImage   string
	SandboxTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr:    getEnv("OKAPI_LISTEN_ADDR", ":8090"),
		DBPath:        getEnv("OKAPI_DB_PATH", "okapi.db"),
		MaxIterations: getEnvInt("OKAPI_MAX_ITERATIONS", 10),
		LLMTimeout:    getEnvDuration("OKAPI_LLM_TIMEOUT", 30*time.Second),
		ToolTimeout:   getEnvDuration("OKAPI_TOOL_TIMEOUT", 60*time.Second),

		OpenAIAPIKey:  os.Getenv("OKAPI_OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OKAPI_OPENAI_BASE_URL"),
		OllamaURL:     getEnv("OKAPI_OLLAMA_URL", ""),
		GeminiAPIKey:  os.Getenv("OKAPI_GEMINI_API_KEY"),

		ProviderPriority: getEnvList("OKAPI_PROVIDER_PRIORITY"),

		SandboxImage:   getEnv("OKAPI_SANDBOX_IMAGE", "alpine:latest"),
		SandboxTimeout: getEnvDuration("OKAPI_SANDBOX_TIMEOUT", 60*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
