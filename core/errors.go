package core

import (
	"errors"
	"fmt"
)

// InputError reports malformed caller input: an empty frame sequence, or an
// unknown exercise with no fallback configured. No partial result accompanies
// it.
type InputError struct {
	Stage   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error at %s: %s", e.Stage, e.Message)
}

// NewInputError builds an InputError for the given pipeline stage.
func NewInputError(stage, format string, args ...any) *InputError {
	return &InputError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// ConsistencyError reports a violated internal invariant discovered during
// result assembly (score out of range, inverted frame range, and so on). It is
// always fatal to the run and must never be surfaced to users as a score.
type ConsistencyError struct {
	Exercise    string
	TotalFrames int
	Detail      string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency error (exercise=%q, frames=%d): %s",
		e.Exercise, e.TotalFrames, e.Detail)
}

// NewConsistencyError builds a ConsistencyError with run context attached.
func NewConsistencyError(exercise string, totalFrames int, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		Exercise:    exercise,
		TotalFrames: totalFrames,
		Detail:      fmt.Sprintf(format, args...),
	}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsConsistencyError reports whether err is (or wraps) a ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
