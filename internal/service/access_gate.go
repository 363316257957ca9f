package service

import "github.com/lshigami/cbtengine/internal/model"

// CanStart reports whether a student may open a new attempt. The restriction
// list wins over everything else.
func CanStart(studentID string, test *model.Test, existing *model.Attempt) bool {
	if test == nil || test.IsRestricted(studentID) {
		return false
	}
	return test.Status == model.StatusOpen && existing == nil
}

// CanResume reports whether a student may keep working on or view an attempt
// they already own.
func CanResume(studentID string, test *model.Test, attempt *model.Attempt) bool {
	if test == nil || attempt == nil || test.IsRestricted(studentID) {
		return false
	}
	return attempt.StudentID == studentID && attempt.TestID == test.ID
}

// CanViewResults reports whether scores of the attempt may be shown to the student.
func CanViewResults(studentID string, test *model.Test, attempt *model.Attempt) bool {
	if test == nil || attempt == nil || !test.ResultsPublished {
		return false
	}
	return attempt.StudentID == studentID && attempt.TestID == test.ID && attempt.IsSubmitted()
}
