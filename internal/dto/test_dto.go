package dto

import (
	"time"

	"github.com/lshigami/cbtengine/internal/model"
)

// --- DTOs for students (listing, answering, results) ---

// StudentObjectiveQuestionDTO hides the correct option.
type StudentObjectiveQuestionDTO struct {
	ID       uint     `json:"id"`
	Position int      `json:"position"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Marks    int      `json:"marks"`
}

// StudentEssayQuestionDTO hides the rubric.
type StudentEssayQuestionDTO struct {
	ID       uint   `json:"id"`
	Position int    `json:"position"`
	Prompt   string `json:"prompt"`
	Marks    int    `json:"marks"`
}

type AvailableTestDTO struct {
	ID              uint               `json:"id"`
	Subject         string             `json:"subject"`
	Title           string             `json:"title"`
	Category        model.TestCategory `json:"category"`
	DurationMinutes int                `json:"duration_minutes"`
	CanStart        bool               `json:"can_start"`
	Attempted       bool               `json:"attempted"`
	Submitted       bool               `json:"submitted"`
}

type AvailableTestsQuery struct {
	ClassID string `form:"class_id" binding:"required"`
}

// AttemptSessionDTO is what the answering UI needs to run the countdown.
type AttemptSessionDTO struct {
	AttemptID          uint                          `json:"attempt_id"`
	TestID             uint                          `json:"test_id"`
	Title              string                        `json:"title"`
	StartTime          time.Time                     `json:"start_time"`
	Deadline           time.Time                     `json:"deadline"`
	RemainingSeconds   int64                         `json:"remaining_seconds"`
	Submitted          bool                          `json:"submitted"`
	ObjectiveQuestions []StudentObjectiveQuestionDTO `json:"objective_questions,omitempty"`
	EssayQuestions     []StudentEssayQuestionDTO     `json:"essay_questions,omitempty"`
	ObjectiveAnswers   map[uint]string               `json:"objective_answers,omitempty"`
	EssayAnswers       map[uint]string               `json:"essay_answers,omitempty"`
}

// AnswersDTO carries answers keyed by question ID.
type AnswersDTO struct {
	ObjectiveAnswers map[uint]string `json:"objective_answers"`
	EssayAnswers     map[uint]string `json:"essay_answers"`
}

// SubmissionReceiptDTO confirms a submission. Scores are never included.
type SubmissionReceiptDTO struct {
	AttemptID     uint      `json:"attempt_id"`
	TestID        uint      `json:"test_id"`
	SubmittedTime time.Time `json:"submitted_time"`
	AutoSubmitted bool      `json:"auto_submitted"`
	Message       string    `json:"message"`
}

type ResultsState string

const (
	ResultsInProgress ResultsState = "in_progress"
	ResultsPending    ResultsState = "pending"
	ResultsPublished  ResultsState = "published"
)

type EssayFeedbackDTO struct {
	QuestionID uint    `json:"question_id"`
	Prompt     string  `json:"prompt"`
	Score      float64 `json:"score"`
	MaxMarks   int     `json:"max_marks"`
	Feedback   string  `json:"feedback"`
}

// ResultsViewDTO is the student-facing result of an attempt. Score fields are
// only populated in the published state.
type ResultsViewDTO struct {
	TestID          uint               `json:"test_id"`
	Title           string             `json:"title"`
	State           ResultsState       `json:"state"`
	SubmittedTime   *time.Time         `json:"submitted_time,omitempty"`
	ObjectiveScore  *int               `json:"objective_score,omitempty"`
	ObjectiveTotal  *int               `json:"objective_total,omitempty"`
	EssayScore      *float64           `json:"essay_score,omitempty"`
	EssayTotal      *int               `json:"essay_total,omitempty"`
	FinalPercentage *float64           `json:"final_percentage,omitempty"`
	EssayFeedback   []EssayFeedbackDTO `json:"essay_feedback,omitempty"`
}
