package lifecycle

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tooShortMessage = "Please enter a more detailed prompt (at least 10 characters)."

func newTestController(t *testing.T, policy Policy) (*Controller, *Executor, *instantAction) {
	t.Helper()
	action := &instantAction{}
	exec := NewExecutor(action, ExecutorConfig{})
	ctrl := NewController(exec, ControllerConfig{Policy: policy, Debounce: 20 * time.Millisecond})
	t.Cleanup(func() {
		ctrl.Close()
		exec.Close()
		exec.Wait()
	})
	return ctrl, exec, action
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyExplicitSubmit},
		{in: "submit", want: PolicyExplicitSubmit},
		{in: " Debounced ", want: PolicyDebouncedLive},
		{in: "eager", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestController_ExplicitRejectsShortPrompt(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyExplicitSubmit)

	ctrl.Input("cat")
	err := ctrl.Submit()

	assert.True(t, errors.Is(err, ErrPromptTooShort))
	assert.Equal(t, tooShortMessage, exec.State().FieldError)
	assert.Equal(t, StatusIdle, exec.State().Status)
	assert.Empty(t, action.calls())
}

func TestController_ExplicitCallsOncePerSubmit(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyExplicitSubmit)

	ctrl.Input(raccoonPrompt)
	assert.Empty(t, action.calls(), "typing alone never dispatches")

	require.NoError(t, ctrl.Submit())
	exec.Wait()

	assert.Equal(t, []string{raccoonPrompt}, action.calls())
	assert.Equal(t, StatusSucceeded, exec.State().Status)
	assert.Empty(t, exec.State().FieldError)
}

func TestController_ExplicitLengthBoundary(t *testing.T) {
	for n := 0; n <= 15; n++ {
		ctrl, exec, action := newTestController(t, PolicyExplicitSubmit)
		prompt := strings.Repeat("x", n)

		err := ctrl.SubmitPrompt(prompt)
		exec.Wait()

		if n < MinPromptLength {
			assert.ErrorIs(t, err, ErrPromptTooShort, "length %d", n)
			assert.Empty(t, action.calls(), "length %d", n)
			assert.Equal(t, tooShortMessage, exec.State().FieldError, "length %d", n)
			continue
		}
		assert.NoError(t, err, "length %d", n)
		assert.Len(t, action.calls(), 1, "length %d", n)
	}
}

func TestController_ExplicitRevalidatesOnChange(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyExplicitSubmit)

	require.Error(t, ctrl.SubmitPrompt("cat"))
	require.Equal(t, tooShortMessage, exec.State().FieldError)

	ctrl.Input("cat on")
	assert.Equal(t, tooShortMessage, exec.State().FieldError)

	ctrl.Input("cat on a mat")
	assert.Empty(t, exec.State().FieldError)
	assert.Empty(t, action.calls())
}

func TestController_DebouncedFiresOnceAfterQuiet(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyDebouncedLive)

	for _, text := range []string{"A", "A cine", "A cinematic", raccoonPrompt} {
		ctrl.Input(text)
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(action.calls()) == 1 }, time.Second, time.Millisecond)
	exec.Wait()
	assert.Never(t, func() bool { return len(action.calls()) > 1 }, 80*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{raccoonPrompt}, action.calls())
	assert.Equal(t, StatusSucceeded, exec.State().Status)
}

func TestController_DebouncedShortInputShowsError(t *testing.T) {
	var rejected atomic.Int32
	action := &instantAction{}
	exec := NewExecutor(action, ExecutorConfig{})
	ctrl := NewController(exec, ControllerConfig{
		Policy:     PolicyDebouncedLive,
		Debounce:   10 * time.Millisecond,
		OnRejected: func(string) { rejected.Add(1) },
	})
	defer exec.Close()
	defer ctrl.Close()

	ctrl.Input("cat")

	require.Eventually(t, func() bool { return exec.State().FieldError == tooShortMessage }, time.Second, time.Millisecond)
	assert.Empty(t, action.calls())
	assert.Equal(t, int32(1), rejected.Load())
}

func TestController_DebouncedBlankIsNotAnError(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyDebouncedLive)

	ctrl.Input("cat")
	require.Eventually(t, func() bool { return exec.State().FieldError != "" }, time.Second, time.Millisecond)

	ctrl.Input("   ")
	require.Eventually(t, func() bool { return exec.State().FieldError == "" }, time.Second, time.Millisecond)

	assert.NoError(t, ctrl.SubmitPrompt(""))
	assert.Empty(t, exec.State().FieldError)
	assert.Empty(t, action.calls())
	assert.Equal(t, StatusIdle, exec.State().Status)
}

func TestController_DebouncedSubmitSkipsTimer(t *testing.T) {
	ctrl, exec, action := newTestController(t, PolicyDebouncedLive)

	ctrl.Input(raccoonPrompt)
	require.NoError(t, ctrl.Submit())
	exec.Wait()

	assert.Never(t, func() bool { return len(action.calls()) > 1 }, 60*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, action.calls(), 1)
}

func TestController_CloseCancelsPendingDebounce(t *testing.T) {
	ctrl, _, action := newTestController(t, PolicyDebouncedLive)

	ctrl.Input(raccoonPrompt)
	ctrl.Close()

	assert.Never(t, func() bool { return len(action.calls()) > 0 }, 60*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, ctrl.Submit(), ErrClosed)

	ctrl.Input("ignored after close")
	assert.Equal(t, raccoonPrompt, ctrl.Text())
}
