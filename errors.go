package coursequiz

import (
	"errors"
	"fmt"
)

// ErrAlreadyCompleted is returned when a quiz that was already submitted is
// submitted again, or when an open view is requested for a completed quiz.
var ErrAlreadyCompleted = errors.New("quiz already completed")

// NotFoundError reports a missing course, quiz or student.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ValidationError reports malformed input: generation output that violates
// the question schema, or a submission with unusable answers.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
	}
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProviderError reports a failed or timed out call to an embedding or
// completion provider, after retries.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IndexingError reports a failure to chunk, persist or index a course.
type IndexingError struct {
	CourseID string
	Err      error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("failed to index course %s: %v", e.CourseID, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// GenerationFailedError wraps whatever aborted a quiz generation.
type GenerationFailedError struct {
	CourseID string
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("quiz generation failed for course %s: %v", e.CourseID, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyCompleted reports whether err is, or wraps, ErrAlreadyCompleted.
func IsAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}
