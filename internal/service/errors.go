package service

import "github.com/pkg/errors"

var (
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrQuestionSetLocked     = errors.New("question set cannot change once attempts exist")
	ErrEvaluationUnavailable = errors.New("essay evaluation unavailable")
	// ErrEvaluationRejected marks evaluator failures a retry cannot fix.
	ErrEvaluationRejected = errors.New("essay evaluation rejected")
)

// ValidationError carries field-level messages and matches ErrValidation.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + e.Details[0]
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
