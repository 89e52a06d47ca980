package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/amical/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.InferenceProvider != "openai" {
		t.Fatalf("InferenceProvider = %q, want openai", cfg.InferenceProvider)
	}
	if cfg.InferenceTimeout != 60*time.Second {
		t.Fatalf("InferenceTimeout = %v, want 60s", cfg.InferenceTimeout)
	}
	if cfg.InferenceTemperature != 0.8 || cfg.InferenceMaxTokens != 500 {
		t.Fatalf("sampling = (%v, %d), want (0.8, 500)", cfg.InferenceTemperature, cfg.InferenceMaxTokens)
	}
	if cfg.HistoryWindow != 20 || cfg.MemoryLimit != 10 {
		t.Fatalf("window/limit = (%d, %d), want (20, 10)", cfg.HistoryWindow, cfg.MemoryLimit)
	}
	if cfg.MemoryRanking != store.RankingLexical {
		t.Fatalf("MemoryRanking = %q, want lexical", cfg.MemoryRanking)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadFallsBackToGatewaySecret(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LOVABLE_API_KEY", "gateway-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InferenceAPIKey != "gateway-secret" {
		t.Fatalf("InferenceAPIKey = %q, want fallback secret", cfg.InferenceAPIKey)
	}

	t.Setenv("INFERENCE_API_KEY", "explicit")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InferenceAPIKey != "explicit" {
		t.Fatalf("InferenceAPIKey = %q, want explicit value", cfg.InferenceAPIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"APP_SHUTDOWN_TIMEOUT", "soon"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"INFERENCE_TIMEOUT", "10ms"},
		{"INFERENCE_TEMPERATURE", "3"},
		{"INFERENCE_MAX_TOKENS", "0"},
		{"CHAT_HISTORY_WINDOW", "21"},
		{"CHAT_MEMORY_LIMIT", "-1"},
		{"MEMORY_RANKING", "random"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tc.key, tc.value)
			}
		})
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	setCoreEnvEmpty(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "INFERENCE_MODEL=from-file\nAPP_BIND_ADDR=:7000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("APP_BIND_ADDR", ":9090")
	// godotenv only fills unset keys; Setenv("") still counts as set.
	os.Unsetenv("INFERENCE_MODEL")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InferenceModel != "from-file" {
		t.Fatalf("InferenceModel = %q, want from-file", cfg.InferenceModel)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want process value :9090", cfg.BindAddr)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"INFERENCE_PROVIDER",
		"INFERENCE_BASE_URL",
		"INFERENCE_API_KEY",
		"LOVABLE_API_KEY",
		"INFERENCE_MODEL",
		"INFERENCE_TEMPERATURE",
		"INFERENCE_MAX_TOKENS",
		"INFERENCE_TIMEOUT",
		"CHAT_HISTORY_WINDOW",
		"CHAT_MEMORY_LIMIT",
		"MEMORY_RANKING",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
