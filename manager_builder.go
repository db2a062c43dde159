package weaver

import (
	"go.uber.org/zap"

	"github.com/mhpenta/weaver/ratelimiter"
)

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a structured logger for the manager.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger.Named("manager")
	}
}

// WithDefaultModel sets the default model used when config.Model is empty.
func WithDefaultModel(model Model) ManagerOption {
	return func(m *Manager) {
		m.defaultModel = model
	}
}

// WithSharedRateLimiter replaces the per-model in-memory limiters with one
// limiter for every registered model.
func WithSharedRateLimiter(limiter ratelimiter.Limiter) ManagerOption {
	return func(m *Manager) {
		for model := range m.modelMappings {
			m.rateLimiters.Set(string(model), limiter)
		}
	}
}

// NewManager creates a Manager with the given providers and options.
//
// Example:
//
//	gen, err := gemini.NewWithAPIKey(ctx, apiKey)
//	if err != nil {
//	    return err
//	}
//	manager := weaver.NewManager(gen,
//	    weaver.WithLogger(logger),
//	)
func NewManager(defaultProvider ImageGenerator, opts ...ManagerOption) *Manager {
	m := New()
	m.RegisterProvider(defaultProvider)

	if models := defaultProvider.Models(); len(models) > 0 {
		m.defaultModel = Model(models[0].Name)
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}
