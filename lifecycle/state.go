// Package lifecycle drives a single prompt from input to a rendered image:
// validation and triggering in Controller, the authoritative request and its
// state machine in Executor, and a cosmetic Progress animation.
package lifecycle

import (
	"errors"

	"github.com/mhpenta/weaver"
)

// MinPromptLength is the interactive minimum, stricter than the 3-character
// floor the Action enforces on its own.
const MinPromptLength = 10

// FallbackMessage is shown when a failed result carries no message.
const FallbackMessage = "There was a problem with your request."

// Toast texts.
const (
	ToastFailureTitle       = "Uh oh! Something went wrong."
	ToastSuccessTitle       = "Success!"
	ToastSuccessDescription = "Your image has been generated."
)

var (
	// ErrPromptTooShort is returned when local validation rejects a prompt.
	ErrPromptTooShort = weaver.ErrPromptTooShort

	// ErrClosed is returned by a Controller after Close.
	ErrClosed = errors.New("lifecycle: closed")
)

// Status is the state of the authoritative request.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Request is a dispatched generation. Only the request whose ID matches the
// latest dispatched ID may change visible state.
type Request struct {
	ID     uint64
	Prompt string
	Status Status
}

// State is the renderable snapshot of an Executor.
type State struct {
	RequestID  uint64           `json:"requestId"`
	Status     Status           `json:"status"`
	Prompt     string           `json:"prompt,omitempty"`
	ImageURL   string           `json:"imageUrl,omitempty"`
	Error      string           `json:"error,omitempty"`
	FieldError string           `json:"fieldError,omitempty"`
	Progress   int              `json:"progress"`
	Download   *weaver.Download `json:"download,omitempty"`
}
