package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/llmgate/pkg/models"
)

// demoPasswordHash is the bcrypt hash of "demo1234".
const demoPasswordHash = "$2b$12$.bydyAHPO4q.n45Hx4sgW.CjNRx07fczTmev6lwbcLDZTxHEGalJ2"

// Config holds all llmgate configuration.
type Config struct {
	Listen      string          `yaml:"listen"`
	APIVersion  string          `yaml:"api_version"`
	LogLevel    string          `yaml:"log_level"`
	Environment string          `yaml:"environment"`
	Auth        AuthConfig      `yaml:"auth"`
	Users       []models.User   `yaml:"users"`
	Backend     BackendConfig   `yaml:"backend"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Cache       CacheConfig     `yaml:"cache"`
	Stream      StreamConfig    `yaml:"stream"`
	Login       LoginConfig     `yaml:"login"`
	History     HistoryConfig   `yaml:"history"`
}

// AuthConfig controls bearer token signing.
type AuthConfig struct {
	SecretKey       string `yaml:"secret_key"`
	Algorithm       string `yaml:"algorithm"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// TokenTTL returns the configured token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// BackendConfig defines the text-generation backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	Warmup  bool          `yaml:"warmup"`
}

// RateLimitConfig controls the per-user sliding window.
type RateLimitConfig struct {
	Requests      int           `yaml:"requests"`
	WindowSeconds int           `yaml:"window_seconds"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Window returns the sliding window length.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// CacheConfig controls the prompt cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

// StreamConfig controls fragment pacing on the streaming endpoint.
type StreamConfig struct {
	Delay  time.Duration `yaml:"delay"`
	Buffer int           `yaml:"buffer"`
}

// LoginConfig throttles the token endpoint per client address.
type LoginConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// HistoryConfig controls the SQLite inference history. An empty DBPath disables it.
type HistoryConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:      ":8000",
		APIVersion:  "v1",
		LogLevel:    "info",
		Environment: "production",
		Auth: AuthConfig{
			SecretKey:       "change-me-in-production",
			Algorithm:       "HS256",
			TokenTTLMinutes: 30,
		},
		Users: []models.User{
			{Username: "demo", PasswordHash: demoPasswordHash},
		},
		Backend: BackendConfig{
			URL:     "http://localhost:11434",
			Model:   "gemma:2b",
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests:      10,
			WindowSeconds: 60,
			SweepInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 128,
		},
		Stream: StreamConfig{
			Delay:  100 * time.Millisecond,
			Buffer: 16,
		},
		Login: LoginConfig{
			RPS:   1,
			Burst: 5,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
	}
}

// envOverrides maps environment variables onto Config. Unset variables leave
// the corresponding field nil.
type envOverrides struct {
	SecretKey   *string `envconfig:"JWT_SECRET_KEY"`
	Algorithm   *string `envconfig:"JWT_ALGORITHM"`
	TokenTTL    *int    `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	BackendURL  *string `envconfig:"OLLAMA_BASE_URL"`
	Model       *string `envconfig:"OLLAMA_MODEL"`
	Requests    *int    `envconfig:"RATE_LIMIT_REQUESTS"`
	Window      *int    `envconfig:"RATE_LIMIT_WINDOW"`
	APIVersion  *string `envconfig:"API_VERSION"`
	LogLevel    *string `envconfig:"LOG_LEVEL"`
	Listen      *string `envconfig:"LLMGATE_LISTEN"`
	HistoryDB   *string `envconfig:"LLMGATE_HISTORY_DB"`
	Environment *string `envconfig:"LLMGATE_ENVIRONMENT"`
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty), a .env file in the working directory and the process environment,
// in that order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process env: %w", err)
	}

	setString(&cfg.Auth.SecretKey, env.SecretKey)
	setString(&cfg.Auth.Algorithm, env.Algorithm)
	setInt(&cfg.Auth.TokenTTLMinutes, env.TokenTTL)
	setString(&cfg.Backend.URL, env.BackendURL)
	setString(&cfg.Backend.Model, env.Model)
	setInt(&cfg.RateLimit.Requests, env.Requests)
	setInt(&cfg.RateLimit.WindowSeconds, env.Window)
	setString(&cfg.APIVersion, env.APIVersion)
	setString(&cfg.LogLevel, env.LogLevel)
	setString(&cfg.Listen, env.Listen)
	setString(&cfg.History.DBPath, env.HistoryDB)
	setString(&cfg.Environment, env.Environment)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate reports the first configuration value that cannot be served.
func (c *Config) Validate() error {
	switch {
	case c.Auth.SecretKey == "":
		return fmt.Errorf("config: auth.secret_key is required")
	case !strings.HasPrefix(c.Auth.Algorithm, "HS"):
		return fmt.Errorf("config: auth.algorithm %q is not an HMAC algorithm", c.Auth.Algorithm)
	case c.RateLimit.Requests <= 0:
		return fmt.Errorf("config: rate_limit.requests must be positive")
	case c.RateLimit.WindowSeconds <= 0:
		return fmt.Errorf("config: rate_limit.window_seconds must be positive")
	case c.Cache.Enabled && c.Cache.Capacity <= 0:
		return fmt.Errorf("config: cache.capacity must be positive")
	case c.Backend.URL == "":
		return fmt.Errorf("config: backend.url is required")
	case strings.Trim(c.APIVersion, "/") == "":
		return fmt.Errorf("config: api_version is required")
	}
	return nil
}
