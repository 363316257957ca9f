package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/lshigami/cbtengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestObjectiveScore(t *testing.T) {
	questions := []model.ObjectiveQuestion{
		{ID: 1, CorrectOption: "A", Marks: 1},
		{ID: 2, CorrectOption: "C", Marks: 3},
		{ID: 3, CorrectOption: "B", Marks: 2},
	}
	tests := []struct {
		name    string
		answers model.AnswerSheet
		want    int
	}{
		{"all correct", model.AnswerSheet{1: "A", 2: "C", 3: "B"}, 6},
		{"none answered", model.AnswerSheet{}, 0},
		{"nil answers", nil, 0},
		{"one wrong", model.AnswerSheet{1: "A", 2: "D", 3: "B"}, 3},
		{"lower case accepted", model.AnswerSheet{2: "c"}, 3},
		{"unknown question ignored", model.AnswerSheet{99: "A"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectiveScore(questions, tt.answers))
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3, 10))
	assert.Equal(t, 10.0, ClampScore(14.5, 10))
	assert.Equal(t, 6.5, ClampScore(6.5, 10))
	assert.Equal(t, 0.0, ClampScore(math.NaN(), 10))
	assert.Equal(t, 10.0, ClampScore(math.Inf(1), 10))
}

func TestRawFractionAndPercentage(t *testing.T) {
	assert.Equal(t, 0.0, RawFraction(5, 0), "no marks on the test")
	assert.Equal(t, 0.75, RawFraction(9, 12))
	assert.Equal(t, 75.0, FinalPercentage(0.75))
}

func TestCategoryScaledScore(t *testing.T) {
	assert.Equal(t, 15.0, CategoryScaledScore(model.CategoryFirstCA, 0.75))
	assert.Equal(t, 15.0, CategoryScaledScore(model.CategorySecondCA, 0.75))
	assert.Equal(t, 37.5, CategoryScaledScore(model.CategoryExam, 0.75))
	assert.Equal(t, 0.0, CategoryScaledScore("mock", 0.75))
}

func TestScoringEngine_ExamScenario(t *testing.T) {
	test := newFakeTestRepo(examTest()).tests[1]
	objID := test.ObjectiveQuestions[0].ID
	essayID := test.EssayQuestions[0].ID

	evaluator := fixedScore(7, "Good structure.")
	sheet := NewScoringEngine(evaluator, 2).Score(context.Background(), test,
		model.AnswerSheet{objID: "B"},
		model.AnswerSheet{essayID: "My school is large and green."})

	assert.Equal(t, 2, sheet.ObjectiveScore)
	assert.Equal(t, 2, sheet.ObjectiveTotal)
	assert.Equal(t, 7.0, sheet.EssayScore)
	assert.Equal(t, 10, sheet.EssayTotal)
	assert.InDelta(t, 0.75, sheet.RawFraction, 1e-9)
	assert.InDelta(t, 75.0, sheet.FinalPercentage, 1e-9)
	assert.InDelta(t, 37.5, CategoryScaledScore(test.Category, sheet.RawFraction), 1e-9)
	assert.False(t, sheet.NeedsReview)
	assert.Equal(t, "Good structure.", sheet.EssayResults[essayID].Feedback)

	require.Len(t, evaluator.reqs, 1)
	assert.Equal(t, "Describe your school", evaluator.reqs[0].Question)
	assert.Contains(t, evaluator.reqs[0].RubricWithMaxMarks, "Maximum marks: 10")
}

func TestScoringEngine_EvaluatorFailureFallsBack(t *testing.T) {
	test := newFakeTestRepo(examTest()).tests[1]
	objID := test.ObjectiveQuestions[0].ID
	essayID := test.EssayQuestions[0].ID

	evaluator := &scriptedEvaluator{fn: func(int, EvaluationRequest) (EvaluationResponse, error) {
		return EvaluationResponse{}, fmt.Errorf("connection refused")
	}}
	sheet := NewScoringEngine(evaluator, 1).Score(context.Background(), test,
		model.AnswerSheet{objID: "B"},
		model.AnswerSheet{essayID: "Some essay"})

	res := sheet.EssayResults[essayID]
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, FeedbackEvaluationUnavailable, res.Feedback)
	assert.True(t, res.Fallback)
	assert.True(t, sheet.NeedsReview)
	assert.InDelta(t, 2.0/12.0*100, sheet.FinalPercentage, 1e-9)
}

func TestScoringEngine_EmptyEssaySkipsEvaluator(t *testing.T) {
	test := newFakeTestRepo(examTest()).tests[1]
	essayID := test.EssayQuestions[0].ID

	evaluator := fixedScore(10, "should not be used")
	sheet := NewScoringEngine(evaluator, 1).Score(context.Background(), test, nil, model.AnswerSheet{essayID: "   "})

	assert.Equal(t, 0, evaluator.Calls())
	assert.Equal(t, FeedbackNoAnswer, sheet.EssayResults[essayID].Feedback)
	assert.Equal(t, 0.0, sheet.FinalPercentage)
	assert.False(t, sheet.NeedsReview)
}

func TestScoringEngine_ClampsOutOfRangeScores(t *testing.T) {
	test := &model.Test{
		ID:       1,
		Category: model.CategoryFirstCA,
		EssayQuestions: []model.EssayQuestion{
			{ID: 11, Prompt: "one", Marks: 5},
			{ID: 12, Prompt: "two", Marks: 5},
		},
	}
	evaluator := &scriptedEvaluator{fn: func(_ int, req EvaluationRequest) (EvaluationResponse, error) {
		if req.Question == "one" {
			return EvaluationResponse{Score: 9}, nil
		}
		return EvaluationResponse{Score: -2}, nil
	}}
	sheet := NewScoringEngine(evaluator, 4).Score(context.Background(), test, nil,
		model.AnswerSheet{11: "a", 12: "b"})

	assert.Equal(t, 5.0, sheet.EssayResults[11].Score)
	assert.Equal(t, 0.0, sheet.EssayResults[12].Score)
	assert.Equal(t, 50.0, sheet.FinalPercentage)
}

func TestScoringEngine_Deterministic(t *testing.T) {
	test := &model.Test{
		ID: 1,
		ObjectiveQuestions: []model.ObjectiveQuestion{
			{ID: 1, Options: datatypes.JSONSlice[string]{"x", "y"}, CorrectOption: "A", Marks: 1},
		},
		EssayQuestions: []model.EssayQuestion{{ID: 2, Marks: 4}, {ID: 3, Marks: 4}, {ID: 4, Marks: 4}},
	}
	engine := NewScoringEngine(fixedScore(2.5, "ok"), 3)
	first := engine.Score(context.Background(), test, model.AnswerSheet{1: "A"}, model.AnswerSheet{2: "a", 3: "b", 4: "c"})
	second := engine.Score(context.Background(), test, model.AnswerSheet{1: "A"}, model.AnswerSheet{2: "a", 3: "b", 4: "c"})
	assert.Equal(t, first, second)
	assert.Equal(t, 7.5, first.EssayScore)
}

func TestScoringEngine_NoMarks(t *testing.T) {
	sheet := NewScoringEngine(fixedScore(1, ""), 1).Score(context.Background(), &model.Test{ID: 1}, nil, nil)
	assert.Equal(t, 0.0, sheet.FinalPercentage)
}
