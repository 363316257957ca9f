package dto

import (
	"time"

	"github.com/lshigami/cbtengine/internal/model"
)

// ObjectiveQuestionCreateDTO is used within TestCreateDTO and TestPatchDTO.
type ObjectiveQuestionCreateDTO struct {
	Prompt        string   `json:"prompt" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2,max=5,dive,required"`
	CorrectOption string   `json:"correct_option" binding:"required,oneof=A B C D E"`
	Marks         int      `json:"marks" binding:"required,min=1"`
}

type EssayQuestionCreateDTO struct {
	Prompt     string `json:"prompt" binding:"required"`
	RubricText string `json:"rubric_text" binding:"required"`
	Marks      int    `json:"marks" binding:"required,min=1"`
}

// TestCreateDTO is for staff or admin to define a new test with its questions.
type TestCreateDTO struct {
	SchoolID           string                       `json:"school_id" binding:"required"`
	ClassID            string                       `json:"class_id" binding:"required"`
	Subject            string                       `json:"subject" binding:"required"`
	Title              string                       `json:"title" binding:"required"`
	Category           model.TestCategory           `json:"category" binding:"required,oneof=first_ca second_ca exam"`
	DurationMinutes    int                          `json:"duration_minutes" binding:"required,gt=0"`
	ObjectiveQuestions []ObjectiveQuestionCreateDTO `json:"objective_questions" binding:"omitempty,dive"`
	EssayQuestions     []EssayQuestionCreateDTO     `json:"essay_questions" binding:"omitempty,dive"`
}

// TestPatchDTO carries a partial update. Nil fields are left unchanged; a
// non-nil question list replaces the whole list.
type TestPatchDTO struct {
	ClassID            *string                       `json:"class_id"`
	Subject            *string                       `json:"subject"`
	Title              *string                       `json:"title"`
	Category           *model.TestCategory           `json:"category" binding:"omitempty,oneof=first_ca second_ca exam"`
	DurationMinutes    *int                          `json:"duration_minutes" binding:"omitempty,gt=0"`
	ObjectiveQuestions *[]ObjectiveQuestionCreateDTO `json:"objective_questions" binding:"omitempty,dive"`
	EssayQuestions     *[]EssayQuestionCreateDTO     `json:"essay_questions" binding:"omitempty,dive"`
}

// TouchesQuestions reports whether the patch replaces any question list.
func (p TestPatchDTO) TouchesQuestions() bool {
	return p.ObjectiveQuestions != nil || p.EssayQuestions != nil
}

type SetStatusDTO struct {
	Status model.TestStatus `json:"status" binding:"required,oneof=draft open closed"`
}

type SetPublicationDTO struct {
	ResultsPublished *bool `json:"results_published" binding:"required"`
}

type SetRestrictionsDTO struct {
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,required"`
}

type TestListQuery struct {
	SchoolID string           `form:"school_id"`
	ClassID  string           `form:"class_id"`
	Subject  string           `form:"subject"`
	Status   model.TestStatus `form:"status" binding:"omitempty,oneof=draft open closed"`
}

// ObjectiveQuestionDTO is the staff view of an objective question, answer included.
type ObjectiveQuestionDTO struct {
	ID            uint     `json:"id"`
	Position      int      `json:"position"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	Marks         int      `json:"marks"`
}

type EssayQuestionDTO struct {
	ID         uint   `json:"id"`
	Position   int    `json:"position"`
	Prompt     string `json:"prompt"`
	RubricText string `json:"rubric_text"`
	Marks      int    `json:"marks"`
}

// TestDetailDTO is the full staff/admin view of a test definition.
type TestDetailDTO struct {
	ID                   uint                   `json:"id"`
	SchoolID             string                 `json:"school_id"`
	ClassID              string                 `json:"class_id"`
	Subject              string                 `json:"subject"`
	Title                string                 `json:"title"`
	Category             model.TestCategory     `json:"category"`
	DurationMinutes      int                    `json:"duration_minutes"`
	Status               model.TestStatus       `json:"status"`
	ResultsPublished     bool                   `json:"results_published"`
	RestrictedStudentIDs []string               `json:"restricted_student_ids"`
	AuthorID             string                 `json:"author_id"`
	TotalMarks           int                    `json:"total_marks"`
	ObjectiveQuestions   []ObjectiveQuestionDTO `json:"objective_questions"`
	EssayQuestions       []EssayQuestionDTO     `json:"essay_questions"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

type TestSummaryDTO struct {
	ID               uint               `json:"id"`
	ClassID          string             `json:"class_id"`
	Subject          string             `json:"subject"`
	Title            string             `json:"title"`
	Category         model.TestCategory `json:"category"`
	DurationMinutes  int                `json:"duration_minutes"`
	Status           model.TestStatus   `json:"status"`
	ResultsPublished bool               `json:"results_published"`
	QuestionCount    int                `json:"question_count"`
	TotalMarks       int                `json:"total_marks"`
	CreatedAt        time.Time          `json:"created_at"`
}

// AttemptSummaryDTO is the staff view of one student's attempt.
type AttemptSummaryDTO struct {
	ID              uint       `json:"id"`
	TestID          uint       `json:"test_id"`
	StudentID       string     `json:"student_id"`
	StartTime       time.Time  `json:"start_time"`
	SubmittedTime   *time.Time `json:"submitted_time,omitempty"`
	AutoSubmitted   bool       `json:"auto_submitted"`
	Late            bool       `json:"late"`
	Scored          bool       `json:"scored"`
	ObjectiveScore  int        `json:"objective_score"`
	EssayScore      float64    `json:"essay_score"`
	FinalPercentage float64    `json:"final_percentage"`
	NeedsReview     bool       `json:"needs_review"`
}
