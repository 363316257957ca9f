package model

import (
	"time"

	"gorm.io/datatypes"
)

// OptionLabels are the answer letters an objective question can use, in order.
var OptionLabels = []string{"A", "B", "C", "D", "E"}

type ObjectiveQuestion struct {
	ID            uint                        `gorm:"primarykey" json:"id"`
	TestID        uint                        `json:"test_id" gorm:"not null;index"`
	Position      int                         `json:"position" gorm:"not null"`
	Prompt        string                      `json:"prompt" gorm:"type:text;not null" validate:"required"`
	Options       datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb;not null" validate:"min=2,max=5,dive,required"`
	CorrectOption string                      `json:"correct_option" gorm:"type:varchar(1);not null" validate:"oneof=A B C D E"`
	Marks         int                         `json:"marks" gorm:"not null" validate:"min=1"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// CorrectOptionInRange reports whether CorrectOption names one of the question's options.
func (q *ObjectiveQuestion) CorrectOptionInRange() bool {
	for i := range q.Options {
		if i < len(OptionLabels) && OptionLabels[i] == q.CorrectOption {
			return true
		}
	}
	return false
}

type EssayQuestion struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	TestID     uint      `json:"test_id" gorm:"not null;index"`
	Position   int       `json:"position" gorm:"not null"`
	Prompt     string    `json:"prompt" gorm:"type:text;not null" validate:"required"`
	RubricText string    `json:"rubric_text" gorm:"type:text;not null" validate:"required"`
	Marks      int       `json:"marks" gorm:"not null" validate:"min=1"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
