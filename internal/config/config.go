package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/amical/internal/prompt"
	"github.com/ent0n29/amical/internal/store"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	DatabaseURL string

	InferenceProvider    string
	InferenceBaseURL     string
	InferenceAPIKey      string
	InferenceModel       string
	InferenceTemperature float64
	InferenceMaxTokens   int
	InferenceTimeout     time.Duration

	HistoryWindow int
	MemoryLimit   int
	MemoryRanking store.Ranking
}

// LoadDotEnv merges KEY=value files into the process environment.
// Variables already set win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "amical"),
		AllowAnyOrigin:           true,
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		InferenceProvider:        envOrDefault("INFERENCE_PROVIDER", "openai"),
		InferenceBaseURL:         stringsTrimSpace("INFERENCE_BASE_URL"),
		InferenceAPIKey:          stringsTrimSpace("INFERENCE_API_KEY"),
		InferenceModel:           stringsTrimSpace("INFERENCE_MODEL"),
		InferenceTemperature:     0.8,
		InferenceMaxTokens:       500,
		InferenceTimeout:         60 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		HistoryWindow:            prompt.HistoryWindow,
		MemoryLimit:              prompt.MaxMemories,
	}
	if cfg.InferenceAPIKey == "" {
		// Deployments that predate INFERENCE_API_KEY only carry the gateway secret.
		cfg.InferenceAPIKey = stringsTrimSpace("LOVABLE_API_KEY")
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
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceTimeout, err = durationFromEnv("INFERENCE_TIMEOUT", cfg.InferenceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceTemperature, err = floatFromEnv("INFERENCE_TEMPERATURE", cfg.InferenceTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceMaxTokens, err = intFromEnv("INFERENCE_MAX_TOKENS", cfg.InferenceMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryLimit, err = intFromEnv("CHAT_MEMORY_LIMIT", cfg.MemoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRanking, err = store.ParseRanking(stringsTrimSpace("MEMORY_RANKING"))
	if err != nil {
		return Config{}, fmt.Errorf("MEMORY_RANKING: %w", err)
	}

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.InferenceTimeout < time.Second {
		return Config{}, fmt.Errorf("INFERENCE_TIMEOUT must be at least 1s")
	}
	if cfg.InferenceTemperature < 0 || cfg.InferenceTemperature > 2 {
		return Config{}, fmt.Errorf("INFERENCE_TEMPERATURE must be within [0, 2]")
	}
	if cfg.InferenceMaxTokens <= 0 {
		return Config{}, fmt.Errorf("INFERENCE_MAX_TOKENS must be positive")
	}
	if cfg.HistoryWindow <= 0 || cfg.HistoryWindow > prompt.HistoryWindow {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be within [1, %d]", prompt.HistoryWindow)
	}
	if cfg.MemoryLimit <= 0 || cfg.MemoryLimit > prompt.MaxMemories {
		return Config{}, fmt.Errorf("CHAT_MEMORY_LIMIT must be within [1, %d]", prompt.MaxMemories)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := strings.ToLower(stringsTrimSpace(key))
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
