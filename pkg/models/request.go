package models

import (
	"fmt"
	"unicode/utf8"
)

// Prompt length bounds, counted in characters.
const (
	MinPromptLength = 1
	MaxPromptLength = 2000
)

// InferenceRequest is the body accepted by the inference endpoints.
type InferenceRequest struct {
	Prompt string `json:"prompt"`
}

// InferenceResponse is the body returned by the inference endpoint.
type InferenceResponse struct {
	Response string `json:"response"`
}

// ValidationError reports a request field that violates a constraint.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Constraint)
}

// ValidatePrompt checks the prompt length against MinPromptLength and MaxPromptLength.
func ValidatePrompt(prompt string) error {
	n := utf8.RuneCountInString(prompt)
	if n < MinPromptLength {
		return &ValidationError{Field: "prompt", Constraint: fmt.Sprintf("must be at least %d character", MinPromptLength)}
	}
	if n > MaxPromptLength {
		return &ValidationError{Field: "prompt", Constraint: fmt.Sprintf("must be at most %d characters", MaxPromptLength)}
	}
	return nil
}
