package weaver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mhpenta/weaver/ratelimiter"
)

const (
	ModelNanoBanana1 Model = "nano-banana-1" // Gemini 2.5 Flash Image
	ModelDallE3      Model = "dall-e-3"

	ModelDefault Model = ModelNanoBanana1
)

var tracer = otel.Tracer("github.com/mhpenta/weaver")

var (
	// ErrModelNotRegistered is returned when a model has no registered provider.
	ErrModelNotRegistered = errors.New("model not registered")

	// ErrProviderNotConfigured is returned when a provider lacks required config.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Provider represents a model provider/backend.
type Provider string

const (
	ProviderGeminiAPI Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
)

// ProviderConfig configures a specific provider.
type ProviderConfig struct {
	// Provider type
	Provider Provider

	// APIKey for authentication
	APIKey string

	// BaseURL for custom endpoints (optional)
	BaseURL string
}

// ModelMapping maps a model identifier to its provider and actual model name.
type ModelMapping struct {
	Provider        Provider
	ActualModelName string
}

// Manager implements ImageGenerator, routing requests to the appropriate
// provider based on the Model in GenerateConfig.
type Manager struct {
	modelMappings map[Model]ModelMapping
	providers     map[Provider]ImageGenerator

	// Default model to use when config.Model is empty
	defaultModel Model

	// Rate limiting (per model)
	rateLimiters ratelimiter.Registry

	modelInfo map[Model]*ModelInfo

	logger *zap.Logger

	tokenEstimator TokenEstimator

	mu sync.RWMutex
}

var _ ImageGenerator = (*Manager)(nil)

// New creates a new Manager.
func New() *Manager {
	return &Manager{
		logger:         zap.NewNop(),
		modelMappings:  make(map[Model]ModelMapping),
		providers:      make(map[Provider]ImageGenerator),
		rateLimiters:   ratelimiter.NewRegistry(),
		modelInfo:      make(map[Model]*ModelInfo),
		tokenEstimator: NewSimpleTokenEstimator(),
		defaultModel:   ModelDefault,
	}
}

// RegisterModel registers a model with full info (including rate limits).
// Uses the default in-memory rate limiter. Use SetRateLimiter to override with a custom implementation.
func (m *Manager) RegisterModel(model Model, mapping ModelMapping, info *ModelInfo) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modelMappings[model] = mapping
	m.modelInfo[model] = info

	if info.RateLimits.TokensPerMinute > 0 || info.RateLimits.RequestsPerMinute > 0 {
		m.rateLimiters.Set(string(model), ratelimiter.New(
			info.RateLimits.TokensPerMinute,
			info.RateLimits.RequestsPerMinute,
		))
	}

	return m
}

// RegisterProvider makes gen available for every model it reports.
func (m *Manager) RegisterProvider(gen ImageGenerator) *Manager {
	models := gen.Models()
	for i := range models {
		info := &models[i]

		m.mu.Lock()
		m.providers[info.Provider] = gen
		m.mu.Unlock()

		m.RegisterModel(Model(info.Name),
			ModelMapping{
				Provider:        info.Provider,
				ActualModelName: info.APIModelName,
			},
			info)
	}
	return m
}

// SetRateLimiter sets a custom rate limiter for a model, e.g. a RedisLimiter
// shared by every replica.
func (m *Manager) SetRateLimiter(model Model, limiter ratelimiter.Limiter) *Manager {
	m.rateLimiters.Set(string(model), limiter)
	return m
}

// SetDefaultModel sets the default model used when config.Model is empty.
func (m *Manager) SetDefaultModel(model Model) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaultModel = model
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger *zap.Logger) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger = logger
	return m
}

// Generate creates images from a text prompt.
func (m *Manager) Generate(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
	if config == nil {
		config = DefaultConfig()
	}

	model := m.resolveModel(config)
	start := time.Now()

	ctx, span := tracer.Start(ctx, "weaver.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", string(model)),
		attribute.Int("prompt_length", PromptLength(prompt)),
	)

	log := m.log().With(zap.String("model", string(model)))
	log.Debug("starting image generation", zap.Int("prompt_length", PromptLength(prompt)))

	if err := m.checkRateLimit(ctx, model, config, prompt); err != nil {
		log.Warn("rate limit hit", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limited")
		return nil, err
	}

	gen, actualConfig, err := m.getGeneratorForConfig(config)
	if err != nil {
		log.Error("failed to get generator", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no generator")
		return nil, err
	}

	result, err := gen.Generate(ctx, prompt, actualConfig)
	duration := time.Since(start)

	if err != nil {
		log.Error("generation failed",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}
	if result == nil {
		result = &GenerateResult{}
	}

	fields := []zap.Field{
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Int("image_count", len(result.Images)),
	}
	if result.UsageMetadata != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", result.UsageMetadata.PromptTokens),
			zap.Int("response_tokens", result.UsageMetadata.CandidatesTokens),
			zap.Int("total_tokens", result.UsageMetadata.TotalTokens),
		)
	}
	log.Info("generation completed", fields...)
	span.SetAttributes(attribute.Int("image_count", len(result.Images)))

	return result, nil
}

// Models returns all registered model definitions.
func (m *Manager) Models() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]ModelInfo, 0, len(m.modelInfo))
	for _, info := range m.modelInfo {
		if info != nil {
			models = append(models, *info)
		}
	}
	return models
}

// Close releases all provider resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for provider, gen := range m.providers {
		if err := gen.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", provider, err))
		}
	}
	m.providers = make(map[Provider]ImageGenerator)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GetModelInfo returns model information for a specific model.
func (m *Manager) GetModelInfo(model Model) (*ModelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.modelInfo[model]
	return info, ok
}

func (m *Manager) log() *zap.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// checkRateLimit checks rate limits for a model and optionally waits.
func (m *Manager) checkRateLimit(ctx context.Context, model Model, config *GenerateConfig, prompt string) error {
	const tokenBuffer = 100

	limiter, err := m.rateLimiters.Get(string(model))
	if err != nil {
		// unlimited model
		return nil
	}

	estimatedTokens := m.tokenEstimator.EstimateTokens(prompt) + tokenBuffer

	if config.WaitOnRateLimit {
		return limiter.WaitAndConsume(ctx, estimatedTokens, config.MaxWaitDuration)
	}

	if !limiter.TryConsume(estimatedTokens) {
		return &RateLimitError{
			RetryAfter: limiter.TimeUntilAvailable(estimatedTokens),
			LimitType:  "tokens",
			Model:      string(model),
		}
	}

	return nil
}

// resolveModel determines the actual model to use.
func (m *Manager) resolveModel(config *GenerateConfig) Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if config != nil && config.Model != "" && config.Model != ModelDefault {
		return config.Model
	}
	return m.defaultModel
}

// getGeneratorForConfig returns the appropriate generator and adjusted config.
func (m *Manager) getGeneratorForConfig(config *GenerateConfig) (ImageGenerator, *GenerateConfig, error) {
	model := m.resolveModel(config)

	m.mu.RLock()
	mapping, ok := m.modelMappings[model]
	gen, hasProvider := m.providers[mapping.Provider]
	m.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, model)
	}
	if !hasProvider {
		return nil, nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, mapping.Provider)
	}

	configCopy := *config
	configCopy.Model = Model(mapping.ActualModelName)

	return gen, &configCopy, nil
}
