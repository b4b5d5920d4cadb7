package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8000" {
		t.Errorf("expected :8000, got %s", cfg.Listen)
	}
	if cfg.Auth.TokenTTL() != 30*time.Minute {
		t.Errorf("expected 30m token TTL, got %v", cfg.Auth.TokenTTL())
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimit.Window() != time.Minute {
		t.Errorf("expected 10 requests per minute, got %d per %v", cfg.RateLimit.Requests, cfg.RateLimit.Window())
	}
	if cfg.Cache.Capacity != 128 {
		t.Errorf("expected cache capacity 128, got %d", cfg.Cache.Capacity)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Username != "demo" {
		t.Errorf("expected demo user, got %+v", cfg.Users)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_SECRET", "s3cr3t")

	path := writeConfig(t, `
listen: ":9090"
api_version: v2
auth:
  secret_key: ${TEST_SECRET}
  token_ttl_minutes: 5
users:
  - username: alice
    password_hash: "$2a$04$abcdefghijklmnopqrstuv"
backend:
  url: http://ollama:11434
  model: llama3
  timeout: 30s
rate_limit:
  requests: 3
  window_seconds: 10
cache:
  enabled: true
  capacity: 4
stream:
  delay: 5ms
history:
  db_path: history.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Auth.SecretKey != "s3cr3t" {
		t.Errorf("env var not expanded: got %s", cfg.Auth.SecretKey)
	}
	if cfg.Auth.Algorithm != "HS256" {
		t.Errorf("expected default algorithm to survive, got %s", cfg.Auth.Algorithm)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.RateLimit.Window() != 10*time.Second {
		t.Errorf("expected 10s window, got %v", cfg.RateLimit.Window())
	}
	if cfg.Stream.Delay != 5*time.Millisecond {
		t.Errorf("expected 5ms delay, got %v", cfg.Stream.Delay)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Username != "alice" {
		t.Fatalf("expected users to be replaced, got %+v", cfg.Users)
	}
	if cfg.History.DBPath != "history.db" {
		t.Errorf("expected history db path, got %q", cfg.History.DBPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "25")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "90")

	path := writeConfig(t, `
rate_limit:
  requests: 3
backend:
  model: llama3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.Requests != 25 {
		t.Errorf("expected env to win with 25, got %d", cfg.RateLimit.Requests)
	}
	if cfg.Backend.Model != "mistral" {
		t.Errorf("expected mistral, got %s", cfg.Backend.Model)
	}
	if cfg.Auth.TokenTTL() != 90*time.Minute {
		t.Errorf("expected 90m, got %v", cfg.Auth.TokenTTL())
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.SecretKey != "from-env" {
		t.Errorf("expected secret from env, got %s", cfg.Auth.SecretKey)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/llmgate.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.Auth.SecretKey = "" }},
		{"asymmetric algorithm", func(c *Config) { c.Auth.Algorithm = "RS256" }},
		{"zero quota", func(c *Config) { c.RateLimit.Requests = 0 }},
		{"zero window", func(c *Config) { c.RateLimit.WindowSeconds = 0 }},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"no backend", func(c *Config) { c.Backend.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
