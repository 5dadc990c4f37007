// Package config loads chatcall runtime configuration from YAML, .env files and the
// environment, validates it and assembles a ready Adapter.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/chatcall/internal/logging"
)

// ErrInvalidConfig is returned when the configuration cannot be parsed or fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Config is the file shape. Durations use Go syntax ("1s", "300ms").
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	// Defaults is the adapter's base configuration (temperature, max_tokens, ...).
	Defaults map[string]any `yaml:"defaults"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      logging.Config `yaml:"log"`
}

// ProviderConfig selects and configures the remote service.
type ProviderConfig struct {
	Name    string `yaml:"name" validate:"required,oneof=openai anthropic gemini ollama"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// APIKey is the instance credential. Leave empty to use the provider's
	// conventional variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY,
	// OLLAMA_API_KEY).
	APIKey  string `yaml:"api_key"`
	Tracing bool   `yaml:"tracing"`
}

// EngineConfig holds the execution policies.
type EngineConfig struct {
	Capacity  int         `yaml:"capacity" validate:"gte=0"`
	RateLimit float64     `yaml:"rate_limit" validate:"gte=0"`
	Burst     int         `yaml:"burst" validate:"gte=0"`
	Metrics   bool        `yaml:"metrics"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig selects a retry strategy. Zero fields take the strategy defaults.
type RetryConfig struct {
	Strategy     string        `yaml:"strategy" validate:"omitempty,oneof=none fixed exponential"`
	MaxRetries   *int          `yaml:"max_retries" validate:"omitempty,gte=0"`
	Delay        time.Duration `yaml:"delay" validate:"gte=0"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	Factor       float64       `yaml:"factor" validate:"omitempty,gte=1"`
	Jitter       time.Duration `yaml:"jitter" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// CacheConfig selects a cache strategy.
type CacheConfig struct {
	Kind          string        `yaml:"kind" validate:"omitempty,oneof=none memory redis"`
	Size          int           `yaml:"size" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Kind redis,omitempty,hostname_port"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	Prefix        string        `yaml:"prefix"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseBytes parses YAML, applies environment overrides and validates the result.
// ${VAR} references in the document are expanded from the environment first.
func ParseBytes(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads and parses a config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return ParseBytes(data)
}

// LoadFS reads and parses a config from fs.FS (e.g. embed.FS).
func LoadFS(fsys fs.FS, name string) (*Config, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("config: read fs: %w", err)
	}
	return ParseBytes(data)
}

// Load loads .env files into the environment (missing files are skipped; variables
// already set win) and then reads path. An empty path builds the config from the
// environment alone.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	if path == "" {
		return ParseBytes(nil)
	}
	return LoadFile(path)
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv overrides file values with CHATCALL_* variables and fills the provider
// credential from its conventional variable when the file leaves it empty.
func (c *Config) applyEnv() error {
	for _, s := range []struct {
		env string
		dst *string
	}{
		{"CHATCALL_PROVIDER", &c.Provider.Name},
		{"CHATCALL_MODEL", &c.Provider.Model},
		{"CHATCALL_BASE_URL", &c.Provider.BaseURL},
		{"CHATCALL_CACHE", &c.Cache.Kind},
		{"CHATCALL_REDIS_ADDR", &c.Cache.RedisAddr},
		{"CHATCALL_LOG_LEVEL", &c.Log.Level},
		{"CHATCALL_LOG_FORMAT", &c.Log.Format},
	} {
		if v, ok := os.LookupEnv(s.env); ok {
			*s.dst = v
		}
	}
	if v, ok := os.LookupEnv("CHATCALL_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CHATCALL_CAPACITY: %w", ErrInvalidConfig, err)
		}
		c.Engine.Capacity = n
	}
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderOpenAI
	}
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case ProviderOpenAI:
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGemini:
			c.Provider.APIKey = cmp.Or(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		case ProviderOllama:
			c.Provider.APIKey = os.Getenv("OLLAMA_API_KEY")
		}
	}
	return nil
}
