package interview

import (
	"errors"
	"fmt"
)

// Code classifies an engine failure for the request-handling layer.
type Code string

const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInvalidPhaseTransition   Code = "INVALID_PHASE_TRANSITION"
	CodeAlreadyConcluded         Code = "ALREADY_CONCLUDED"
	CodeDocumentEmpty            Code = "DOCUMENT_EMPTY"
	CodeEmptyAnswer              Code = "EMPTY_ANSWER"
	CodeStrategyGenerationFailed Code = "STRATEGY_GENERATION_FAILED"
	CodeQuestionGenerationFailed Code = "QUESTION_GENERATION_FAILED"
	CodeRequestAlreadyInFlight   Code = "REQUEST_ALREADY_IN_FLIGHT"
	CodeTranscriptionFailed      Code = "TRANSCRIPTION_FAILED"
)

// Error is returned by every Engine operation that fails.
// Notice, when set, is an interviewer-style message that can be shown to the candidate
// in place of the next question; the session stays usable.
type Error struct {
	Code   Code
	Reason string
	Notice string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of an engine error, or an empty code for any other error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

const (
	questionRetryNotice = "Sorry, I need a moment to prepare the next question. Please submit your answer again and we will continue where we left off."
	transcriptionNotice = "Sorry, I could not make out that recording. Could you answer again, or type your answer instead?"
)
