package lifecycle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/weaver"
)

// DefaultDebounce is the quiescence window of the debounced policy.
const DefaultDebounce = 600 * time.Millisecond

// Policy decides what turns input into a request.
type Policy string

const (
	// PolicyExplicitSubmit dispatches only on Submit.
	PolicyExplicitSubmit Policy = "submit"

	// PolicyDebouncedLive dispatches once input has been quiet for the
	// debounce window.
	PolicyDebouncedLive Policy = "debounced"
)

// ParsePolicy maps "submit" and "debounced" to a Policy. The empty string
// selects PolicyExplicitSubmit.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExplicitSubmit:
		return PolicyExplicitSubmit, nil
	case PolicyDebouncedLive:
		return PolicyDebouncedLive, nil
	}
	return "", fmt.Errorf("unknown policy %q", s)
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Policy    Policy
	MinLength int
	Debounce  time.Duration

	// OnRejected is called whenever local validation blocks a request.
	OnRejected func(prompt string)

	Logger *zap.Logger
}

// Controller tracks the prompt text and decides when it becomes a request.
// Prompts that fail validation never reach the Executor; the failure shows
// up as State.FieldError instead.
type Controller struct {
	exec   *Executor
	cfg    ControllerConfig
	logger *zap.Logger

	mu         sync.Mutex
	text       string
	fieldError bool
	timer      *time.Timer
	generation uint64
	closed     bool
}

// NewController creates a Controller feeding exec.
func NewController(exec *Executor, cfg ControllerConfig) *Controller {
	if cfg.Policy == "" {
		cfg.Policy = PolicyExplicitSubmit
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = MinPromptLength
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("controller").With(zap.String("policy", string(cfg.Policy))),
	}
}

// Policy returns the triggering policy.
func (c *Controller) Policy() Policy {
	return c.cfg.Policy
}

// Text returns the current prompt text.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Input records a change to the prompt text.
//
// Under the explicit policy a visible field error is re-checked against the
// new text. Under the debounced policy the pending timer is replaced.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.text = text

	switch c.cfg.Policy {
	case PolicyDebouncedLive:
		c.stopTimer()
		gen := c.generation
		c.timer = time.AfterFunc(c.cfg.Debounce, func() { c.fire(gen) })
	default:
		if c.fieldError {
			if err := c.validate(text); err == nil {
				c.showFieldError(false)
			}
		}
	}
}

// Submit triggers a request for the current text.
func (c *Controller) Submit() error {
	c.mu.Lock()
	text := c.text
	c.mu.Unlock()
	return c.SubmitPrompt(text)
}

// SubmitPrompt sets the text and triggers a request immediately, cancelling
// any pending debounce. It returns ErrPromptTooShort when validation blocks
// the request and ErrClosed after Close.
func (c *Controller) SubmitPrompt(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.text = text
	c.stopTimer()
	return c.trigger(text)
}

// Close cancels any pending debounce. Nothing fires afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopTimer()
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return
	}
	c.timer = nil
	_ = c.trigger(c.text)
}

// trigger must be called with c.mu held.
func (c *Controller) trigger(text string) error {
	if c.cfg.Policy == PolicyDebouncedLive && strings.TrimSpace(text) == "" {
		c.showFieldError(false)
		return nil
	}

	if err := c.validate(text); err != nil {
		c.logger.Debug("prompt rejected", zap.Error(err))
		c.showFieldError(true)
		if c.cfg.OnRejected != nil {
			c.cfg.OnRejected(text)
		}
		return err
	}

	c.fieldError = false
	c.exec.Dispatch(text)
	return nil
}

func (c *Controller) validate(text string) error {
	return weaver.ValidatePromptLength(text, c.cfg.MinLength)
}

func (c *Controller) showFieldError(show bool) {
	c.fieldError = show
	msg := ""
	if show {
		msg = weaver.TooShortMessage(c.cfg.MinLength)
	}
	c.exec.setFieldError(msg)
}

// stopTimer must be called with c.mu held. Bumping the generation keeps a
// timer that already fired from dispatching.
func (c *Controller) stopTimer() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
