package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrAttemptsExist is returned by ReplaceQuestions when the test already has attempts.
var ErrAttemptsExist = errors.New("test has attempts")
