package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TestCategory string

const (
	CategoryFirstCA  TestCategory = "first_ca"
	CategorySecondCA TestCategory = "second_ca"
	CategoryExam     TestCategory = "exam"
)

type TestStatus string

const (
	StatusDraft  TestStatus = "draft"
	StatusOpen   TestStatus = "open"
	StatusClosed TestStatus = "closed"
)

type Test struct {
	ID                   uint                        `gorm:"primarykey" json:"id"`
	SchoolID             string                      `json:"school_id" gorm:"not null;index" validate:"required"`
	ClassID              string                      `json:"class_id" gorm:"not null;index" validate:"required"`
	Subject              string                      `json:"subject" gorm:"not null;index" validate:"required"`
	Title                string                      `json:"title" gorm:"not null" validate:"required"`
	Category             TestCategory                `json:"category" gorm:"type:varchar(16);not null" validate:"oneof=first_ca second_ca exam"`
	DurationMinutes      int                         `json:"duration_minutes" gorm:"not null" validate:"gt=0"`
	Status               TestStatus                  `json:"status" gorm:"type:varchar(16);not null;default:'draft';index" validate:"oneof=draft open closed"`
	ResultsPublished     bool                        `json:"results_published" gorm:"not null;default:false"`
	RestrictedStudentIDs datatypes.JSONSlice[string] `json:"restricted_student_ids" gorm:"type:jsonb"`
	AuthorID             string                      `json:"author_id" gorm:"not null;index" validate:"required"`
	ObjectiveQuestions   []ObjectiveQuestion         `json:"objective_questions,omitempty" gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE" validate:"dive"`
	EssayQuestions       []EssayQuestion             `json:"essay_questions,omitempty" gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE" validate:"dive"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
	DeletedAt            gorm.DeletedAt              `gorm:"index" json:"-"`
}

// IsRestricted reports whether the student is on the test's restriction list.
func (t *Test) IsRestricted(studentID string) bool {
	for _, id := range t.RestrictedStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

func (t *Test) OwnedBy(userID string) bool {
	return userID != "" && t.AuthorID == userID
}

func (t *Test) ObjectiveMarks() int {
	total := 0
	for _, q := range t.ObjectiveQuestions {
		total += q.Marks
	}
	return total
}

func (t *Test) EssayMarks() int {
	total := 0
	for _, q := range t.EssayQuestions {
		total += q.Marks
	}
	return total
}

// TotalMarks is the denominator used when normalising an attempt's score.
func (t *Test) TotalMarks() int {
	return t.ObjectiveMarks() + t.EssayMarks()
}
