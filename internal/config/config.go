package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the recall chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	SessionInactivityTimeout time.Duration

	AuthProvider   string
	MemoryProvider string
	LLMProvider    string

	GoogleAPIKey      string
	LLMModel          string
	LLMTemperature    float64
	EmbeddingModel    string
	EmbeddingModelDim int

	Mem0BaseURL string
	Mem0APIKey  string

	SupabaseURL     string
	SupabaseAnonKey string

	DatabaseURL string

	MemorySearchLimit int
}

// Load reads environment variables and applies safe defaults.
// Validation of required settings happens separately in Validate so that
// every missing name can be reported in one pass.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "recall"),
		AllowAnyOrigin:    false,
		AuthProvider:      strings.ToLower(envOrDefault("AUTH_PROVIDER", "supabase")),
		MemoryProvider:    strings.ToLower(envOrDefault("MEMORY_PROVIDER", "mem0")),
		LLMProvider:       strings.ToLower(envOrDefault("LLM_PROVIDER", "gemini")),
		GoogleAPIKey:      trimmedEnv("GOOGLE_API_KEY"),
		LLMModel:          envOrDefault("LLM_MODEL", "gemini-1.5-flash-latest"),
		LLMTemperature:    0.7,
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "models/text-embedding-004"),
		EmbeddingModelDim: 768,
		Mem0BaseURL:       trimmedEnv("MEM0_BASE_URL"),
		Mem0APIKey:        trimmedEnv("MEM0_API_KEY"),
		SupabaseURL:       trimmedEnv("SUPABASE_URL"),
		SupabaseAnonKey:   trimmedEnv("SUPABASE_ANON_KEY"),
		DatabaseURL:       trimmedEnv("DATABASE_URL"),
		MemorySearchLimit: 5,
		ShutdownTimeout:   15 * time.Second,

		SessionInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingModelDim, err = intFromEnv("EMBEDDING_MODEL_DIMS", cfg.EmbeddingModelDim)
	if err != nil {
		return Config{}, err
	}
	cfg.MemorySearchLimit, err = intFromEnv("MEMORY_SEARCH_LIMIT", cfg.MemorySearchLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.EmbeddingModelDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_MODEL_DIMS must be positive")
	}
	if cfg.MemorySearchLimit <= 0 {
		return Config{}, fmt.Errorf("MEMORY_SEARCH_LIMIT must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}

	return cfg, nil
}

// Validate checks that every setting required by the selected providers is
// present. All missing names are reported together so the operator can fix
// the environment in one pass.
func (c Config) Validate() error {
	type required struct {
		name  string
		value string
	}
	var checks []required

	if c.LLMProvider == "gemini" {
		checks = append(checks, required{"GOOGLE_API_KEY", c.GoogleAPIKey})
	}
	if c.MemoryProvider == "mem0" {
		checks = append(checks, required{"MEM0_BASE_URL", c.Mem0BaseURL})
	}
	if c.AuthProvider == "supabase" {
		checks = append(checks,
			required{"SUPABASE_URL", c.SupabaseURL},
			required{"SUPABASE_ANON_KEY", c.SupabaseAnonKey},
		)
	}

	var missing []string
	for _, r := range checks {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing essential environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.AuthProvider {
	case "supabase", "mock":
	default:
		return fmt.Errorf("invalid AUTH_PROVIDER: %q (expected supabase|mock)", c.AuthProvider)
	}
	switch c.MemoryProvider {
	case "mem0", "mock":
	default:
		return fmt.Errorf("invalid MEMORY_PROVIDER: %q (expected mem0|mock)", c.MemoryProvider)
	}
	switch c.LLMProvider {
	case "gemini", "mock":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected gemini|mock)", c.LLMProvider)
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
