package service

import (
	"context"

	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// GradebookMerger receives category-scaled CBT results. A slot that already
// holds a grade is never overwritten.
type GradebookMerger interface {
	Merge(ctx context.Context, studentID, subject string, category model.TestCategory, scaledScore float64) error
}

type gradebookMerger struct {
	repo repository.GradebookRepository
}

func NewGradebookMerger(repo repository.GradebookRepository) GradebookMerger {
	return &gradebookMerger{repo: repo}
}

func (g *gradebookMerger) Merge(ctx context.Context, studentID, subject string, category model.TestCategory, scaledScore float64) error {
	filled, err := g.repo.FillEmptySlot(ctx, studentID, subject, category, scaledScore)
	if err != nil {
		return errors.Wrapf(err, "merge %s result for student %s in %s", category, studentID, subject)
	}
	event := log.Info()
	if !filled {
		event = log.Debug()
	}
	event.
		Str("studentID", studentID).
		Str("subject", subject).
		Str("category", string(category)).
		Float64("score", scaledScore).
		Bool("filled", filled).
		Msg("Gradebook merge")
	return nil
}
