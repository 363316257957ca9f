package model

import "time"

// GradebookEntry is one student's per-subject row of category slots. A nil
// slot has not been filled yet.
type GradebookEntry struct {
	ID        uint     `gorm:"primarykey" json:"id"`
	StudentID string   `json:"student_id" gorm:"not null;uniqueIndex:idx_gradebook_student_subject"`
	Subject   string   `json:"subject" gorm:"not null;uniqueIndex:idx_gradebook_student_subject"`
	FirstCA   *float64 `json:"first_ca,omitempty"`
	SecondCA  *float64 `json:"second_ca,omitempty"`
	Exam      *float64 `json:"exam,omitempty"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GradebookColumn returns the gradebook_entries column a category writes to.
func GradebookColumn(c TestCategory) (string, bool) {
	switch c {
	case CategoryFirstCA:
		return "first_ca", true
	case CategorySecondCA:
		return "second_ca", true
	case CategoryExam:
		return "exam", true
	}
	return "", false
}
