package repository

import (
	"context"
	"fmt"

	"github.com/lshigami/cbtengine/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GradebookRepository interface {
	// FillEmptySlot writes score into the category slot of the student's
	// subject row only when that slot is still empty. It reports whether a
	// write happened.
	FillEmptySlot(ctx context.Context, studentID, subject string, category model.TestCategory, score float64) (bool, error)
}

type gradebookRepository struct {
	db *gorm.DB
}

func NewGradebookRepository(db *gorm.DB) GradebookRepository {
	return &gradebookRepository{db: db}
}

func (r *gradebookRepository) FillEmptySlot(ctx context.Context, studentID, subject string, category model.TestCategory, score float64) (bool, error) {
	column, ok := model.GradebookColumn(category)
	if !ok {
		return false, fmt.Errorf("unknown test category %q", category)
	}
	filled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := model.GradebookEntry{StudentID: studentID, Subject: subject}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "subject"}},
			DoNothing: true,
		}).Create(&entry).Error; err != nil {
			return err
		}
		res := tx.Model(&model.GradebookEntry{}).
			Where("student_id = ? AND subject = ?", studentID, subject).
			Where(column + " IS NULL").
			Update(column, score)
		if res.Error != nil {
			return res.Error
		}
		filled = res.RowsAffected == 1
		return nil
	})
	return filled, err
}
