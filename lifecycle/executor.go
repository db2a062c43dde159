package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/weaver"
	"github.com/mhpenta/weaver/notify"
)

// Notifier receives the toasts raised on terminal transitions.
// *notify.Bus satisfies it.
type Notifier interface {
	Toast(t notify.Toast) string
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Timeout bounds each action call. Zero means weaver.DefaultActionTimeout.
	Timeout time.Duration

	// NotifySuccess raises a toast when a request succeeds. Failures always
	// raise exactly one toast.
	NotifySuccess bool

	Notifier Notifier

	// Scope tags every toast so a shared bus can route it to one view.
	Scope string

	// Progress enables the simulated progress animation when non-nil.
	Progress *ProgressConfig

	// OnStale is called for every result dropped because a newer request
	// was dispatched.
	OnStale func(req Request)

	Logger *zap.Logger
}

// Executor owns the single authoritative generation request. Requests may
// overlap; only the most recently dispatched one may change State.
type Executor struct {
	action   weaver.PromptGenerator
	cfg      ExecutorConfig
	logger   *zap.Logger
	progress *Progress
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	emitMu    sync.Mutex
	latest    uint64
	state     State
	observers map[uint64]func(State)
	nextObs   uint64
	closed    bool
	inflight  sync.WaitGroup
}

// NewExecutor creates an idle Executor calling action.
func NewExecutor(action weaver.PromptGenerator, cfg ExecutorConfig) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = weaver.DefaultActionTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		action:    action,
		cfg:       cfg,
		logger:    logger.Named("executor"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Status: StatusIdle},
		observers: make(map[uint64]func(State)),
	}
	if cfg.Progress != nil {
		e.progress = NewProgress(*cfg.Progress, e.onProgress)
	}
	return e
}

// State returns the current snapshot.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn for every state change, starting with the current
// state. Callbacks are serialized in commit order and must not call back
// into the Executor.
func (e *Executor) Subscribe(fn func(State)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextObs++
	id := e.nextObs
	e.observers[id] = fn
	snap := e.state
	e.emitMu.Lock()
	e.mu.Unlock()
	fn(snap)
	e.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.observers, id)
		})
	}
}

// Dispatch supersedes any in-flight request and starts a new one for prompt.
// The prompt is expected to have passed local validation. After Close the
// returned Request is Idle with a zero ID.
func (e *Executor) Dispatch(prompt string) Request {
	var req Request
	e.commit(func(s *State) bool {
		if e.closed {
			return false
		}
		e.latest++
		req = Request{ID: e.latest, Prompt: prompt, Status: StatusPending}
		*s = State{RequestID: req.ID, Status: StatusPending, Prompt: prompt}
		return true
	})
	if req.ID == 0 {
		return Request{Prompt: prompt, Status: StatusIdle}
	}

	e.logger.Debug("dispatching request",
		zap.Uint64("request_id", req.ID),
		zap.Int("prompt_length", weaver.PromptLength(prompt)),
	)
	if e.progress != nil {
		e.progress.Start(req.ID)
	}

	e.inflight.Add(1)
	go e.run(req)
	return req
}

// Reset returns to Idle and supersedes any in-flight request.
func (e *Executor) Reset() {
	var id uint64
	e.commit(func(s *State) bool {
		if e.closed {
			return false
		}
		e.latest++
		id = e.latest
		*s = State{RequestID: id, Status: StatusIdle}
		return true
	})
	if id != 0 && e.progress != nil {
		e.progress.Fail(id)
	}
}

// Close supersedes any in-flight request and cancels its context. Results
// arriving afterwards are ignored. Close does not wait for them.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.latest++
	e.observers = make(map[uint64]func(State))
	e.mu.Unlock()

	e.cancel()
	if e.progress != nil {
		e.progress.Close()
	}
}

// Wait blocks until every dispatched call has returned.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

func (e *Executor) setFieldError(msg string) {
	e.commit(func(s *State) bool {
		if e.closed || s.FieldError == msg {
			return false
		}
		s.FieldError = msg
		return true
	})
}

func (e *Executor) run(req Request) {
	defer e.inflight.Done()

	res := e.call(req)
	e.resolve(req, res)
}

func (e *Executor) call(req Request) (res weaver.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked",
				zap.Uint64("request_id", req.ID),
				zap.Any("panic", r),
			)
			res = weaver.Failed(weaver.MessageUnexpected)
		}
	}()

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Timeout)
	defer cancel()
	return e.action.Generate(ctx, req.Prompt)
}

func (e *Executor) resolve(req Request, res weaver.ActionResult) {
	url := res.URL()
	succeeded := res.Success && url != ""
	message := res.Message()
	if message == "" {
		message = FallbackMessage
	}

	applied := e.commit(func(s *State) bool {
		if e.closed || req.ID != e.latest {
			return false
		}
		if succeeded {
			s.Status = StatusSucceeded
			s.ImageURL = url
			s.Download = weaver.NewDownload(url, e.now())
			s.Error = ""
		} else {
			s.Status = StatusFailed
			s.ImageURL = ""
			s.Download = nil
			s.Error = message
		}
		return true
	})
	if !applied {
		e.logger.Debug("dropping stale result",
			zap.Uint64("request_id", req.ID),
			zap.Bool("success", succeeded),
		)
		if e.cfg.OnStale != nil {
			e.cfg.OnStale(req)
		}
		return
	}

	log := e.logger.With(zap.Uint64("request_id", req.ID))
	if succeeded {
		log.Info("request succeeded")
		if e.progress != nil {
			e.progress.Complete(req.ID)
		}
		if e.cfg.NotifySuccess {
			e.notify(notify.Toast{
				Title:       ToastSuccessTitle,
				Description: ToastSuccessDescription,
			})
		}
		return
	}

	log.Info("request failed", zap.String("error", message))
	if e.progress != nil {
		e.progress.Fail(req.ID)
	}
	e.notify(notify.Toast{
		Title:       ToastFailureTitle,
		Description: message,
		Variant:     notify.VariantDestructive,
	})
}

func (e *Executor) notify(t notify.Toast) {
	if e.cfg.Notifier == nil {
		return
	}
	t.Scope = e.cfg.Scope
	e.cfg.Notifier.Toast(t)
}

func (e *Executor) onProgress(run uint64, value int) {
	e.commit(func(s *State) bool {
		if e.closed || s.RequestID != run || s.Progress == value {
			return false
		}
		s.Progress = value
		return true
	})
}

// commit applies fn to the state under the lock and, if fn reports a change,
// delivers the new snapshot to observers in commit order.
func (e *Executor) commit(fn func(s *State) bool) bool {
	e.mu.Lock()
	if !fn(&e.state) {
		e.mu.Unlock()
		return false
	}
	snap := e.state
	observers := make([]func(State), 0, len(e.observers))
	for _, obs := range e.observers {
		observers = append(observers, obs)
	}
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	for _, obs := range observers {
		obs(snap)
	}
	return true
}
