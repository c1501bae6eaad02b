package coursequiz

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to wire an Engine and its executables.
type Config struct {
	LogMode       string `yaml:"log_mode"`
	TranscriptDir string `yaml:"transcript_dir"`

	Database   DatabaseConfig   `yaml:"database"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Provider   ProviderConfig   `yaml:"provider"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | pgx
	DSN    string `yaml:"dsn"`
}

type OpenAIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float32 `yaml:"temperature"`
}

type EmbeddingsConfig struct {
	Provider    string `yaml:"provider"` // openai | ollama
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

// ProviderConfig is the timeout and retry policy applied to every
// embedding and completion call.
type ProviderConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type ChunkingConfig struct {
	TargetSize    int `yaml:"target_size"`
	ContextChunks int `yaml:"context_chunks"`
}

type RedisConfig struct {
	Addr   string        `yaml:"addr"` // empty disables the shared vector cache
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

type HTTPConfig struct {
	Addr          string   `yaml:"addr"`
	SessionSecret string   `yaml:"session_secret"`
	SecureCookies bool     `yaml:"secure_cookies"` // set behind TLS
	CORSOrigins   []string `yaml:"cors_origins"`
}

type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogMode: "dev",
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./coursequiz.db",
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "openai",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			BatchSize:   64,
			Concurrency: 4,
		},
		Provider: ProviderConfig{
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
		Chunking: ChunkingConfig{
			TargetSize:    500,
			ContextChunks: 10,
		},
		Redis: RedisConfig{
			Prefix: "coursequiz:vec:",
			TTL:    7 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Addr:        ":8180",
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig layers defaults, the YAML file at path (skipped when path is
// empty), a .env file if one exists, and environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. A variable that is set but
// cannot be parsed is a *ConfigError naming the variable.
func applyEnv(cfg *Config) error {
	env := &envReader{}
	env.str("LOG_MODE", &cfg.LogMode)
	env.str("TRANSCRIPT_DIR", &cfg.TranscriptDir)
	env.str("DB_DRIVER", &cfg.Database.Driver)
	env.str("DB_DSN", &cfg.Database.DSN)
	env.str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	env.str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	env.str("OPENAI_MODEL", &cfg.OpenAI.Model)
	env.str("OPENAI_EMBED_MODEL", &cfg.OpenAI.EmbeddingModel)
	env.str("EMBEDDINGS_PROVIDER", &cfg.Embeddings.Provider)
	env.str("OLLAMA_URL", &cfg.Embeddings.OllamaURL)
	env.str("OLLAMA_MODEL", &cfg.Embeddings.OllamaModel)
	env.int("EMBEDDINGS_BATCH_SIZE", &cfg.Embeddings.BatchSize)
	env.int("EMBEDDINGS_CONCURRENCY", &cfg.Embeddings.Concurrency)
	env.duration("PROVIDER_TIMEOUT", &cfg.Provider.Timeout)
	env.int("PROVIDER_MAX_RETRIES", &cfg.Provider.MaxRetries)
	env.int("CHUNK_TARGET_SIZE", &cfg.Chunking.TargetSize)
	env.int("CONTEXT_CHUNKS", &cfg.Chunking.ContextChunks)
	env.str("REDIS_ADDR", &cfg.Redis.Addr)
	env.str("REDIS_PREFIX", &cfg.Redis.Prefix)
	env.duration("REDIS_TTL", &cfg.Redis.TTL)
	env.str("HTTP_ADDR", &cfg.HTTP.Addr)
	env.str("SESSION_SECRET", &cfg.HTTP.SessionSecret)
	env.bool("SESSION_SECURE", &cfg.HTTP.SecureCookies)
	env.bool("TRACING_STDOUT", &cfg.Tracing.Stdout)
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		cfg.HTTP.CORSOrigins = splitCSV(v)
	}
	return env.err
}

// envReader applies environment overrides and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.err = &ConfigError{Field: name, Reason: fmt.Sprintf("invalid integer %q", v)}
		return
	}
	*dst = i
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = &ConfigError{Field: name, Reason: fmt.Sprintf("invalid duration %q", v)}
		return
	}
	*dst = d
}

func (e *envReader) bool(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = &ConfigError{Field: name, Reason: fmt.Sprintf("invalid boolean %q", v)}
		return
	}
	*dst = b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ConfigError names the setting that made a Config unusable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Validate checks the settings needed to build an Engine.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return &ConfigError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "openai.api_key", Reason: "OPENAI_API_KEY is required"}
	}
	switch c.Embeddings.Provider {
	case "openai":
	case "ollama":
		if c.Embeddings.OllamaURL == "" {
			return &ConfigError{Field: "embeddings.ollama_url", Reason: "required for the ollama provider"}
		}
	default:
		return &ConfigError{Field: "embeddings.provider", Reason: fmt.Sprintf("unsupported provider %q", c.Embeddings.Provider)}
	}
	if c.Chunking.TargetSize <= 0 {
		return &ConfigError{Field: "chunking.target_size", Reason: "must be positive"}
	}
	if c.Chunking.ContextChunks <= 0 {
		return &ConfigError{Field: "chunking.context_chunks", Reason: "must be positive"}
	}
	if c.Provider.Timeout <= 0 {
		return &ConfigError{Field: "provider.timeout", Reason: "must be positive"}
	}
	if c.Provider.MaxRetries < 0 {
		return &ConfigError{Field: "provider.max_retries", Reason: "must not be negative"}
	}
	return nil
}

// RetryPolicy derives the provider retry policy from c.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:        c.Provider.Timeout,
		MaxRetries:     c.Provider.MaxRetries,
		InitialBackoff: c.Provider.InitialBackoff,
		MaxBackoff:     c.Provider.MaxBackoff,
	}
}
