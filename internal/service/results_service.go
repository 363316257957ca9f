package service

import (
	"context"

	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/pkg/errors"
)

type ResultsService interface {
	GetResultsView(ctx context.Context, studentID string, testID uint) (*dto.ResultsViewDTO, error)
}

type resultsService struct {
	testRepo    repository.TestRepository
	attemptRepo repository.AttemptRepository
}

func NewResultsService(testRepo repository.TestRepository, attemptRepo repository.AttemptRepository) ResultsService {
	return &resultsService{testRepo: testRepo, attemptRepo: attemptRepo}
}

func (s *resultsService) GetResultsView(ctx context.Context, studentID string, testID uint) (*dto.ResultsViewDTO, error) {
	test, err := s.testRepo.FindByIDWithQuestions(ctx, testID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "test %d", testID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load test %d", testID)
	}
	attempt, err := s.attemptRepo.FindByTestAndStudent(ctx, testID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no attempt on test %d", testID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load attempt for test %d", testID)
	}
	if attempt.StudentID != studentID {
		return nil, errors.Wrapf(ErrForbidden, "attempt %d", attempt.ID)
	}
	view := AssembleResultsView(studentID, test, attempt)
	return &view, nil
}

// AssembleResultsView builds what the student may see of an attempt. Scores
// appear only when CanViewResults holds and the attempt has been scored.
func AssembleResultsView(studentID string, test *model.Test, attempt *model.Attempt) dto.ResultsViewDTO {
	view := dto.ResultsViewDTO{
		TestID:        test.ID,
		Title:         test.Title,
		State:         dto.ResultsPending,
		SubmittedTime: attempt.SubmittedTime,
	}
	if !attempt.IsSubmitted() {
		view.State = dto.ResultsInProgress
		return view
	}
	if !CanViewResults(studentID, test, attempt) || !attempt.IsScored() {
		return view
	}

	objectiveScore := attempt.ObjectiveScore
	objectiveTotal := test.ObjectiveMarks()
	essayScore := attempt.EssayScore
	essayTotal := test.EssayMarks()
	finalPercentage := attempt.FinalPercentage

	view.State = dto.ResultsPublished
	view.ObjectiveScore = &objectiveScore
	view.ObjectiveTotal = &objectiveTotal
	view.EssayScore = &essayScore
	view.EssayTotal = &essayTotal
	view.FinalPercentage = &finalPercentage

	results := attempt.EssayResults.Data()
	for _, q := range test.EssayQuestions {
		r, ok := results[q.ID]
		if !ok {
			continue
		}
		view.EssayFeedback = append(view.EssayFeedback, dto.EssayFeedbackDTO{
			QuestionID: q.ID,
			Prompt:     q.Prompt,
			Score:      r.Score,
			MaxMarks:   q.Marks,
			Feedback:   r.Feedback,
		})
	}
	return view
}
