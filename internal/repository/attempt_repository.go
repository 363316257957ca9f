package repository

import (
	"context"
	"time"

	"github.com/lshigami/cbtengine/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository interface {
	// CreateIfAbsent inserts the attempt unless one already exists for the
	// (test, student) pair, and returns whichever row is stored.
	CreateIfAbsent(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error)
	FindByID(ctx context.Context, id uint) (*model.Attempt, error)
	FindByTestAndStudent(ctx context.Context, testID uint, studentID string) (*model.Attempt, error)
	ListByTest(ctx context.Context, testID uint) ([]model.Attempt, error)
	ListByStudent(ctx context.Context, studentID string, testIDs []uint) ([]model.Attempt, error)
	CountByTest(ctx context.Context, testID uint) (int64, error)
	// SaveDrafts overwrites the draft answers of an unsubmitted attempt.
	// It reports false when the attempt was already submitted.
	SaveDrafts(ctx context.Context, id uint, objective, essay model.AnswerSheet) (bool, error)
	// Freeze records the submitted answers. Only the first call for an
	// attempt succeeds; later calls report false.
	Freeze(ctx context.Context, id uint, sub model.Submission) (bool, error)
	// SaveScores writes every score component of a submitted, unscored
	// attempt in one statement.
	SaveScores(ctx context.Context, id uint, sheet model.ScoreSheet, scoredAt time.Time) (bool, error)
	ListExpiredUnsubmitted(ctx context.Context, cutoff time.Time) ([]model.Attempt, error)
	ListUnscored(ctx context.Context, submittedBefore time.Time) ([]model.Attempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) CreateIfAbsent(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Share lock on the test row; ReplaceQuestions takes it exclusively.
		var test model.Test
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").First(&test, attempt.TestID).Error; err != nil {
			return translate(err)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "test_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).Create(attempt).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindByTestAndStudent(ctx, attempt.TestID, attempt.StudentID)
}

func (r *attemptRepository) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (r *attemptRepository) FindByTestAndStudent(ctx context.Context, testID uint, studentID string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		First(&attempt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (r *attemptRepository) ListByTest(ctx context.Context, testID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("start_time ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) ListByStudent(ctx context.Context, studentID string, testIDs []uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	if len(testIDs) == 0 {
		return attempts, nil
	}
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND test_id IN ?", studentID, testIDs).
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) CountByTest(ctx context.Context, testID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Attempt{}).Where("test_id = ?", testID).Count(&count).Error
	return count, err
}

func (r *attemptRepository) SaveDrafts(ctx context.Context, id uint, objective, essay model.AnswerSheet) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Attempt{}).
		Where("id = ? AND submitted_time IS NULL", id).
		Updates(map[string]interface{}{
			"draft_objective_answers": datatypes.NewJSONType(objective),
			"draft_essay_answers":     datatypes.NewJSONType(essay),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *attemptRepository) Freeze(ctx context.Context, id uint, sub model.Submission) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Attempt{}).
		Where("id = ? AND submitted_time IS NULL", id).
		Updates(map[string]interface{}{
			"submitted_time":    sub.SubmittedTime,
			"auto_submitted":    sub.AutoSubmitted,
			"late":              sub.Late,
			"objective_answers": datatypes.NewJSONType(sub.ObjectiveAnswers),
			"essay_answers":     datatypes.NewJSONType(sub.EssayAnswers),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *attemptRepository) SaveScores(ctx context.Context, id uint, sheet model.ScoreSheet, scoredAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Attempt{}).
		Where("id = ? AND submitted_time IS NOT NULL AND scored_at IS NULL", id).
		Updates(map[string]interface{}{
			"scored_at":        scoredAt,
			"objective_score":  sheet.ObjectiveScore,
			"essay_results":    datatypes.NewJSONType(sheet.EssayResults),
			"essay_score":      sheet.EssayScore,
			"final_percentage": sheet.FinalPercentage,
			"needs_review":     sheet.NeedsReview,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *attemptRepository) ListExpiredUnsubmitted(ctx context.Context, cutoff time.Time) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Select("attempts.*").
		Joins("JOIN tests ON tests.id = attempts.test_id AND tests.deleted_at IS NULL").
		Where("attempts.submitted_time IS NULL").
		Where("attempts.start_time + make_interval(mins => tests.duration_minutes) < ?", cutoff).
		Order("attempts.start_time ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) ListUnscored(ctx context.Context, submittedBefore time.Time) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("submitted_time IS NOT NULL AND scored_at IS NULL AND submitted_time < ?", submittedBefore).
		Order("submitted_time ASC").
		Find(&attempts).Error
	return attempts, err
}
