// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/mhpenta/weaver/internal/logger"
)

// Config holds the whole service configuration.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	HTTPPort string `env:"HTTP_PORT" env-default:"8080"`
	Logger   logger.Config

	Image      ImageConfig
	Generation GenerationConfig
	Redis      RedisConfig

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" env-default:""`
}

// ImageConfig selects and authenticates the image provider.
type ImageConfig struct {
	Provider      string `env:"IMAGE_PROVIDER" env-default:"gemini"` // gemini or openai
	Model         string `env:"IMAGE_MODEL" env-default:""`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" env-default:""`
}

// GenerationConfig tunes the request lifecycle.
type GenerationConfig struct {
	Timeout          time.Duration `env:"GENERATION_TIMEOUT" env-default:"120s"`
	DebounceInterval time.Duration `env:"DEBOUNCE_INTERVAL" env-default:"600ms"`
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// Load reads the .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected provider has credentials.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Image.Provider) {
	case "gemini":
		if c.Image.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for IMAGE_PROVIDER=gemini")
		}
	case "openai":
		if c.Image.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for IMAGE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown IMAGE_PROVIDER %q", c.Image.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("GENERATION_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// GetAllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
