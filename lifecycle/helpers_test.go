package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhpenta/weaver"
	"github.com/mhpenta/weaver/notify"
)

const (
	raccoonPrompt = "A cinematic shot of a raccoon astronaut on a neon-lit alien planet"
	foxPrompt     = "an older prompt for a fox"
	wolfPrompt    = "a newer prompt for a wolf"
)

// gatedAction blocks every call until the test releases it by prompt.
// Calls arrive in scheduler order, not dispatch order.
type gatedAction struct {
	mu      sync.Mutex
	prompts []string
	gates   []*gate
	started chan string
}

type gate struct {
	prompt   string
	ch       chan weaver.ActionResult
	released bool
}

func newGatedAction() *gatedAction {
	return &gatedAction{started: make(chan string, 32)}
}

func (g *gatedAction) Generate(ctx context.Context, prompt string) weaver.ActionResult {
	gt := &gate{prompt: prompt, ch: make(chan weaver.ActionResult, 1)}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.gates = append(g.gates, gt)
	g.mu.Unlock()

	g.started <- prompt
	select {
	case res := <-gt.ch:
		return res
	case <-ctx.Done():
		return weaver.Failed(weaver.MessageUnexpected)
	}
}

func (g *gatedAction) awaitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-g.started:
		case <-time.After(time.Second):
			require.FailNow(t, "action was not called")
		}
	}
}

// release answers the oldest unreleased call made with prompt.
func (g *gatedAction) release(t *testing.T, prompt string, res weaver.ActionResult) {
	t.Helper()
	g.mu.Lock()
	var found *gate
	for _, gt := range g.gates {
		if gt.prompt == prompt && !gt.released {
			gt.released = true
			found = gt
			break
		}
	}
	g.mu.Unlock()
	require.NotNil(t, found, "no pending call for %q", prompt)
	found.ch <- res
}

func (g *gatedAction) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// instantAction answers immediately.
type instantAction struct {
	mu      sync.Mutex
	prompts []string
	result  func(prompt string) weaver.ActionResult
}

func (a *instantAction) Generate(_ context.Context, prompt string) weaver.ActionResult {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.mu.Unlock()
	if a.result != nil {
		return a.result(prompt)
	}
	return weaver.Succeeded("https://img.example/" + prompt + ".png")
}

func (a *instantAction) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}

// stateLog records every snapshot delivered to an observer.
type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) observe(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

// statuses returns the distinct status transitions, ignoring progress and
// field error updates.
func (l *stateLog) statuses() []Status {
	var out []Status
	var lastID uint64
	for _, s := range l.all() {
		if len(out) > 0 && out[len(out)-1] == s.Status && s.RequestID == lastID {
			continue
		}
		out = append(out, s.Status)
		lastID = s.RequestID
	}
	return out
}

// toastLog is a Notifier recording every toast.
type toastLog struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (l *toastLog) Toast(t notify.Toast) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toasts = append(l.toasts, t)
	return t.Title
}

func (l *toastLog) all() []notify.Toast {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Toast(nil), l.toasts...)
}

// stubGenerator is an ImageGenerator for exercising the real Action.
type stubGenerator struct {
	generate func(ctx context.Context, prompt string) (*weaver.GenerateResult, error)
}

func (g stubGenerator) Generate(ctx context.Context, prompt string, _ *weaver.GenerateConfig) (*weaver.GenerateResult, error) {
	return g.generate(ctx, prompt)
}

func (stubGenerator) Models() []weaver.ModelInfo { return nil }

func (stubGenerator) Close() error { return nil }
