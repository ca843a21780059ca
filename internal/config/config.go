package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Storage: postgres://... or sqlite://path. Empty means the local sqlite profile.
	DatabaseURL string `env:"DATABASE_URL"`

	// LLM provider (OpenAI-compatible)
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMBaseURL  string `env:"LLM_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	CatalogPath string `env:"MODEL_CATALOG"`
	ChatModel   string `env:"DEFAULT_CHAT_MODEL" envDefault:"chat-model"`

	// getWeather tool
	WeatherBaseURL string `env:"WEATHER_BASE_URL" envDefault:"https://api.open-meteo.com/v1"`

	// Server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`

	// Telegram front-end, disabled when empty
	BotToken string `env:"BOT_TOKEN"`

	// Entitlements
	MaxMessagesPerDay int      `env:"MAX_MESSAGES_PER_DAY" envDefault:"100"`
	AvailableModels   []string `env:"AVAILABLE_MODELS" envSeparator:"," envDefault:"chat-model,chat-model-reasoning"`

	// Limits
	RateLimitPerMinute   int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	StreamRetention      time.Duration `env:"STREAM_RETENTION" envDefault:"24h"`
	MaxStreamsPerSession int           `env:"MAX_STREAMS_PER_SESSION" envDefault:"20"`
	DeltaFlushInterval   time.Duration `env:"DELTA_FLUSH_INTERVAL" envDefault:"50ms"`

	// Loaded workspaces
	WorkspaceIdleTimeout time.Duration `env:"WORKSPACE_IDLE_TIMEOUT" envDefault:"30m"`
	MaxWorkspaces        int           `env:"MAX_WORKSPACES" envDefault:"1000"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// StorageURL returns DatabaseURL, defaulting to a sqlite file in the user's home directory.
func (c *Config) StorageURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, DataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return "sqlite://" + filepath.Join(dir, "mindcanvas.db"), nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) IsModelAvailable(modelID string) bool {
	if len(c.AvailableModels) == 0 {
		return true
	}
	for _, id := range c.AvailableModels {
		if id == modelID {
			return true
		}
	}
	return false
}
