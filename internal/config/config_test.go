package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Encoding)
	assert.Equal(t, "gemini", cfg.Image.Provider)
	assert.Equal(t, 120*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 600*time.Millisecond, cfg.Generation.DebounceInterval)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Nil(t, cfg.GetAllowedOrigins())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("IMAGE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GENERATION_TIMEOUT", "30s")
	t.Setenv("DEBOUNCE_INTERVAL", "250ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "openai", cfg.Image.Provider)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.DebounceInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.GetAllowedOrigins())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "gemini without key",
			cfg:     Config{Image: ImageConfig{Provider: "gemini"}, Generation: GenerationConfig{Timeout: time.Second}},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "openai without key",
			cfg:     Config{Image: ImageConfig{Provider: "openai"}, Generation: GenerationConfig{Timeout: time.Second}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown provider",
			cfg:     Config{Image: ImageConfig{Provider: "midjourney"}, Generation: GenerationConfig{Timeout: time.Second}},
			wantErr: "unknown IMAGE_PROVIDER",
		},
		{
			name:    "zero timeout",
			cfg:     Config{Image: ImageConfig{Provider: "gemini", GeminiAPIKey: "k"}},
			wantErr: "GENERATION_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
