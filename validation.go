package weaver

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Validation errors
var (
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrPromptTooShort = errors.New("prompt is too short")
)

// Prompt length floors.
const (
	// MinActionPromptLength is the floor enforced at the server boundary.
	// It is looser than the interactive rule and does not replace it.
	MinActionPromptLength = 3
)

// PromptLength counts a prompt in code points, which is how users perceive it.
func PromptLength(prompt string) int {
	return utf8.RuneCountInString(prompt)
}

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ValidatePromptLength rejects prompts shorter than minLength.
func ValidatePromptLength(prompt string, minLength int) error {
	if n := PromptLength(prompt); n < minLength {
		return fmt.Errorf("%w: %d characters (min %d)", ErrPromptTooShort, n, minLength)
	}
	return nil
}

// TooShortMessage is the user-facing text for a prompt under minLength.
func TooShortMessage(minLength int) string {
	return fmt.Sprintf("Please enter a more detailed prompt (at least %d characters).", minLength)
}
