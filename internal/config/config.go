package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ErrMissingCredential halts startup when no API key can be resolved.
var ErrMissingCredential = errors.New("API key missing: set OPENAI_API_KEY or OPENAI_API_KEY_FILE")

// Config holds runtime configuration read once at startup.
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Chat
	ChatMode        string        `env:"CHAT_MODE" envDefault:"context"` // "context" (local chunks) or "file" (remote file store)
	ChunkSize       int           `env:"CHUNK_SIZE" envDefault:"1200"`
	ChunkOverlap    int           `env:"CHUNK_OVERLAP" envDefault:"200"`
	MaxChunks       int           `env:"MAX_CONTEXT_CHUNKS" envDefault:"5"`
	ResetOnUpload   bool          `env:"RESET_TRANSCRIPT_ON_UPLOAD" envDefault:"true"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SessionSweepInt time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`

	// LLM
	LLMProvider   string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIKeyFile string `env:"OPENAI_API_KEY_FILE,file"` // contents of the secret file named by the variable
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	LLMModel      string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	// Answer cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"none"` // "none" or "redis"
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	// Events
	EventsProvider string `env:"EVENTS_PROVIDER" envDefault:"none"` // "none" or "nats"
	QueueURL       string `env:"QUEUE_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// APIKey resolves the credential, preferring the secret file over the plain
// environment variable.
func (c Config) APIKey() (string, error) {
	if key := strings.TrimSpace(c.OpenAIKeyFile); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(c.OpenAIKey); key != "" {
		return key, nil
	}
	return "", ErrMissingCredential
}

// Validate checks settings that would otherwise fail on first use.
func (c Config) Validate() error {
	if _, err := c.APIKey(); err != nil {
		return err
	}
	switch c.ChatMode {
	case "context", "file":
	default:
		return fmt.Errorf("invalid CHAT_MODE: %s (valid options: context, file)", c.ChatMode)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	return nil
}
