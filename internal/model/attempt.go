package model

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerSheet maps a question ID to the student's answer: an option letter for
// objective questions, free text for essays.
type AnswerSheet map[uint]string

type EssayResult struct {
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	Compliant bool    `json:"compliant"`
	// Fallback is set when the evaluator could not score the answer and the
	// zero score needs manual review.
	Fallback bool `json:"fallback,omitempty"`
}

type Attempt struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	TestID    uint      `json:"test_id" gorm:"not null;uniqueIndex:idx_attempt_test_student"`
	StudentID string    `json:"student_id" gorm:"not null;uniqueIndex:idx_attempt_test_student;index"`
	StartTime time.Time `json:"start_time" gorm:"not null"`

	DraftObjectiveAnswers datatypes.JSONType[AnswerSheet] `json:"-" gorm:"type:jsonb"`
	DraftEssayAnswers     datatypes.JSONType[AnswerSheet] `json:"-" gorm:"type:jsonb"`

	SubmittedTime    *time.Time                      `json:"submitted_time,omitempty" gorm:"index"`
	AutoSubmitted    bool                            `json:"auto_submitted" gorm:"not null;default:false"`
	Late             bool                            `json:"late" gorm:"not null;default:false"`
	ObjectiveAnswers datatypes.JSONType[AnswerSheet] `json:"-" gorm:"type:jsonb"`
	EssayAnswers     datatypes.JSONType[AnswerSheet] `json:"-" gorm:"type:jsonb"`

	ScoredAt        *time.Time                               `json:"scored_at,omitempty" gorm:"index"`
	ObjectiveScore  int                                      `json:"objective_score"`
	EssayResults    datatypes.JSONType[map[uint]EssayResult] `json:"-" gorm:"type:jsonb"`
	EssayScore      float64                                  `json:"essay_score"`
	FinalPercentage float64                                  `json:"final_percentage"`
	NeedsReview     bool                                     `json:"needs_review" gorm:"not null;default:false"`
	CreatedAt       time.Time                                `json:"created_at"`
	UpdatedAt       time.Time                                `json:"updated_at"`
}

func (a *Attempt) IsSubmitted() bool {
	return a.SubmittedTime != nil
}

func (a *Attempt) IsScored() bool {
	return a.ScoredAt != nil
}

// Submission is the frozen answer set written when an attempt is submitted.
type Submission struct {
	SubmittedTime    time.Time
	AutoSubmitted    bool
	Late             bool
	ObjectiveAnswers AnswerSheet
	EssayAnswers     AnswerSheet
}

// ScoreSheet holds every computed score component of an attempt. It is
// persisted in a single write.
type ScoreSheet struct {
	ObjectiveScore  int
	ObjectiveTotal  int
	EssayResults    map[uint]EssayResult
	EssayScore      float64
	EssayTotal      int
	RawFraction     float64
	FinalPercentage float64
	NeedsReview     bool
}
