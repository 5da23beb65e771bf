package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means the provider could not produce a result.
	ErrServiceUnavailable = errors.New("ai service unavailable")
	// ErrTimeout means the provider did not answer in time.
	ErrTimeout = errors.New("ai service timeout")
)

// Completer generates text for a system instruction and a prompt.
type Completer interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Model() string
}

// ProviderError wraps a failed provider call together with its classification.
type ProviderError struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify wraps err as a ProviderError. Deadline errors become ErrTimeout, everything
// else ErrServiceUnavailable. Already classified errors pass through untouched.
func Classify(provider, op string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	kind := ErrServiceUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}

	return &ProviderError{Provider: provider, Op: op, Kind: kind, Err: err}
}
