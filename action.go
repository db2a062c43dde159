package weaver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// User-facing messages produced by the Action.
const (
	MessageEmptyResult = "Image generation failed. The AI may be busy, please try again."
	MessageUnexpected  = "An unexpected error occurred during image generation."
)

// DefaultActionTimeout bounds a single collaborator call.
const DefaultActionTimeout = 120 * time.Second

// ActionResult is the structured outcome of a generation attempt. Exactly one
// of ImageURL and Error is set.
type ActionResult struct {
	Success  bool    `json:"success"`
	ImageURL *string `json:"imageUrl"`
	Error    *string `json:"error"`
}

// Succeeded builds a successful ActionResult.
func Succeeded(url string) ActionResult {
	return ActionResult{Success: true, ImageURL: &url}
}

// Failed builds a failed ActionResult carrying a user-facing message.
func Failed(message string) ActionResult {
	return ActionResult{Error: &message}
}

// URL returns the image URL or "".
func (r ActionResult) URL() string {
	if r.ImageURL == nil {
		return ""
	}
	return *r.ImageURL
}

// Message returns the error message or "".
func (r ActionResult) Message() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Action is the server boundary in front of the image collaborator. It
// checks the 3-character floor, calls the generator, and folds every failure
// into an ActionResult. It never returns an error and never panics.
type Action struct {
	generator ImageGenerator
	config    *GenerateConfig
	timeout   time.Duration
	minLength int
	logger    *zap.Logger
	observe   func(outcome string, d time.Duration)
}

var _ PromptGenerator = (*Action)(nil)

// ActionOption configures an Action.
type ActionOption func(*Action)

// WithActionTimeout bounds each collaborator call. Zero disables the bound.
func WithActionTimeout(d time.Duration) ActionOption {
	return func(a *Action) { a.timeout = d }
}

// WithActionLogger sets the logger used for failure causes.
func WithActionLogger(logger *zap.Logger) ActionOption {
	return func(a *Action) { a.logger = logger.Named("action") }
}

// WithGenerateConfig sets the generation options passed to the collaborator.
func WithGenerateConfig(cfg *GenerateConfig) ActionOption {
	return func(a *Action) { a.config = cfg }
}

// WithOutcomeObserver registers a callback invoked once per call with one of
// "validation", "empty", "error" or "success".
func WithOutcomeObserver(fn func(outcome string, d time.Duration)) ActionOption {
	return func(a *Action) { a.observe = fn }
}

// NewAction creates an Action over generator.
func NewAction(generator ImageGenerator, opts ...ActionOption) *Action {
	a := &Action{
		generator: generator,
		timeout:   DefaultActionTimeout,
		minLength: MinActionPromptLength,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate runs one generation attempt.
func (a *Action) Generate(ctx context.Context, prompt string) (result ActionResult) {
	start := time.Now()
	outcome := "error"
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("generation panicked", zap.Any("panic", r))
			result = Failed(MessageUnexpected)
			outcome = "error"
		}
		if a.observe != nil {
			a.observe(outcome, time.Since(start))
		}
	}()

	if err := ValidatePromptLength(prompt, a.minLength); err != nil {
		a.logger.Debug("prompt rejected", zap.Error(err))
		outcome = "validation"
		return Failed(TooShortMessage(a.minLength))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := a.generator.Generate(ctx, prompt, a.generateConfig())
	if err != nil {
		a.logger.Error("image generation failed",
			zap.Int("prompt_length", PromptLength(prompt)),
			zap.Bool("rate_limited", IsRateLimitError(err)),
			zap.Error(err),
		)
		return Failed(MessageUnexpected)
	}

	url := res.ImageURL()
	if url == "" {
		a.logger.Warn("image generation returned nothing usable",
			zap.Error(fmt.Errorf("%w: %d images", ErrEmptyResult, imageCount(res))),
		)
		outcome = "empty"
		return Failed(MessageEmptyResult)
	}

	outcome = "success"
	return Succeeded(url)
}

func (a *Action) generateConfig() *GenerateConfig {
	if a.config == nil {
		return DefaultConfig()
	}
	cfg := *a.config
	return &cfg
}

func imageCount(res *GenerateResult) int {
	if res == nil {
		return 0
	}
	return len(res.Images)
}
