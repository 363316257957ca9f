package service

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/lshigami/cbtengine/internal/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	FeedbackEvaluationUnavailable = "Evaluation unavailable, requires manual review."
	FeedbackNoAnswer              = "No answer submitted."
)

// ScoringEngine turns a frozen answer set into a ScoreSheet.
type ScoringEngine interface {
	Score(ctx context.Context, test *model.Test, objective, essay model.AnswerSheet) model.ScoreSheet
}

type scoringEngine struct {
	evaluator   EssayEvaluator
	concurrency int
}

// NewScoringEngine evaluates up to concurrency essays at once.
func NewScoringEngine(evaluator EssayEvaluator, concurrency int) ScoringEngine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &scoringEngine{evaluator: evaluator, concurrency: concurrency}
}

// ObjectiveScore sums the marks of every question answered with its correct option.
func ObjectiveScore(questions []model.ObjectiveQuestion, answers model.AnswerSheet) int {
	score := 0
	for _, q := range questions {
		if answer, ok := answers[q.ID]; ok && strings.EqualFold(strings.TrimSpace(answer), q.CorrectOption) {
			score += q.Marks
		}
	}
	return score
}

// ClampScore bounds an evaluator score to [0, marks]. NaN scores 0.
func ClampScore(score float64, marks int) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if limit := float64(marks); score > limit {
		return limit
	}
	return score
}

// RawFraction is the earned share of totalMarks, 0 when the test carries no marks.
func RawFraction(earned float64, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	f := earned / float64(totalMarks)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// FinalPercentage is the 0-100 percentage stored on an attempt.
func FinalPercentage(rawFraction float64) float64 {
	return rawFraction * 100
}

// CategoryWeight is the gradebook scale of a test category: 20 for each
// continuous assessment, 50 for the exam.
func CategoryWeight(c model.TestCategory) float64 {
	switch c {
	case model.CategoryFirstCA, model.CategorySecondCA:
		return 20
	case model.CategoryExam:
		return 50
	}
	return 0
}

// CategoryScaledScore is the contribution reported into the gradebook. It is
// never stored on the attempt.
func CategoryScaledScore(c model.TestCategory, rawFraction float64) float64 {
	return rawFraction * CategoryWeight(c)
}

func (s *scoringEngine) Score(ctx context.Context, test *model.Test, objective, essay model.AnswerSheet) model.ScoreSheet {
	sheet := model.ScoreSheet{
		ObjectiveScore: ObjectiveScore(test.ObjectiveQuestions, objective),
		ObjectiveTotal: test.ObjectiveMarks(),
		EssayResults:   make(map[uint]model.EssayResult, len(test.EssayQuestions)),
		EssayTotal:     test.EssayMarks(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range test.EssayQuestions {
		q := test.EssayQuestions[i]
		answer := strings.TrimSpace(essay[q.ID])
		if answer == "" {
			mu.Lock()
			sheet.EssayResults[q.ID] = model.EssayResult{Feedback: FeedbackNoAnswer}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			res := s.evaluateEssay(gctx, test.ID, q, answer)
			mu.Lock()
			sheet.EssayResults[q.ID] = res
			mu.Unlock()
			return nil
		})
	}
	// evaluateEssay absorbs every failure, so Wait never returns an error.
	_ = g.Wait()

	for _, q := range test.EssayQuestions {
		res := sheet.EssayResults[q.ID]
		sheet.EssayScore += res.Score
		if res.Fallback {
			sheet.NeedsReview = true
		}
	}

	sheet.RawFraction = RawFraction(float64(sheet.ObjectiveScore)+sheet.EssayScore, test.TotalMarks())
	sheet.FinalPercentage = FinalPercentage(sheet.RawFraction)
	return sheet
}

func (s *scoringEngine) evaluateEssay(ctx context.Context, testID uint, q model.EssayQuestion, answer string) model.EssayResult {
	resp, err := s.evaluator.Evaluate(ctx, EvaluationRequest{
		Question:           q.Prompt,
		RubricWithMaxMarks: RubricWithMaxMarks(q.RubricText, q.Marks),
		StudentAnswer:      answer,
	})
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Uint("questionID", q.ID).Msg("Essay evaluation failed, recording fallback score")
		return model.EssayResult{Feedback: FeedbackEvaluationUnavailable, Fallback: true}
	}
	score := ClampScore(resp.Score, q.Marks)
	if score != resp.Score {
		log.Warn().Uint("questionID", q.ID).Float64("returned", resp.Score).Float64("clamped", score).Msg("Evaluator score out of range")
	}
	return model.EssayResult{
		Score:     score,
		Feedback:  strings.TrimSpace(resp.Feedback),
		Compliant: resp.IsCompliant,
	}
}
