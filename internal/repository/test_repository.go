package repository

import (
	"context"
	"errors"

	"github.com/lshigami/cbtengine/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TestFilter struct {
	SchoolID string
	ClassID  string
	Subject  string
	Status   model.TestStatus
	AuthorID string
}

type TestRepository interface {
	Create(ctx context.Context, test *model.Test) error
	FindByID(ctx context.Context, id uint) (*model.Test, error)
	FindByIDWithQuestions(ctx context.Context, id uint) (*model.Test, error)
	List(ctx context.Context, filter TestFilter) ([]model.Test, error)
	// Update saves the test's definition columns; questions, status,
	// publication and restrictions are left untouched.
	Update(ctx context.Context, test *model.Test) error
	// ReplaceQuestions saves the definition columns and swaps the whole
	// question set. It fails with ErrAttemptsExist once any attempt exists.
	ReplaceQuestions(ctx context.Context, test *model.Test) error
	SetStatus(ctx context.Context, id uint, status model.TestStatus) error
	SetResultsPublished(ctx context.Context, id uint, published bool) error
	SetRestrictedStudents(ctx context.Context, id uint, studentIDs []string) error
}

// definitionColumns are the columns a test edit may change.
var definitionColumns = []string{"class_id", "subject", "title", "category", "duration_minutes"}

type testRepository struct {
	db *gorm.DB
}

func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

func (r *testRepository) Create(ctx context.Context, test *model.Test) error {
	// GORM creates ObjectiveQuestions and EssayQuestions along with the test.
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) FindByID(ctx context.Context, id uint) (*model.Test, error) {
	var test model.Test
	if err := r.db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, translate(err)
	}
	return &test, nil
}

func (r *testRepository) FindByIDWithQuestions(ctx context.Context, id uint) (*model.Test, error) {
	var test model.Test
	err := r.db.WithContext(ctx).
		Preload("ObjectiveQuestions", func(db *gorm.DB) *gorm.DB {
			return db.Order("objective_questions.position ASC")
		}).
		Preload("EssayQuestions", func(db *gorm.DB) *gorm.DB {
			return db.Order("essay_questions.position ASC")
		}).
		First(&test, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &test, nil
}

func (r *testRepository) List(ctx context.Context, filter TestFilter) ([]model.Test, error) {
	query := r.db.WithContext(ctx).Model(&model.Test{})
	if filter.SchoolID != "" {
		query = query.Where("school_id = ?", filter.SchoolID)
	}
	if filter.ClassID != "" {
		query = query.Where("class_id = ?", filter.ClassID)
	}
	if filter.Subject != "" {
		query = query.Where("subject = ?", filter.Subject)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	var tests []model.Test
	err := query.
		Preload("ObjectiveQuestions").
		Preload("EssayQuestions").
		Order("created_at DESC").
		Find(&tests).Error
	return tests, err
}

func (r *testRepository) Update(ctx context.Context, test *model.Test) error {
	return r.db.WithContext(ctx).Model(test).Select(definitionColumns).Updates(test).Error
}

func (r *testRepository) ReplaceQuestions(ctx context.Context, test *model.Test) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock orders this against CreateIfAbsent, which holds a share lock.
		var locked model.Test
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&locked, test.ID).Error; err != nil {
			return translate(err)
		}
		var attempts int64
		if err := tx.Model(&model.Attempt{}).Where("test_id = ?", test.ID).Count(&attempts).Error; err != nil {
			return err
		}
		if attempts > 0 {
			return ErrAttemptsExist
		}
		if err := tx.Model(test).Select(definitionColumns).Updates(test).Error; err != nil {
			return err
		}
		if err := tx.Where("test_id = ?", test.ID).Delete(&model.ObjectiveQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("test_id = ?", test.ID).Delete(&model.EssayQuestion{}).Error; err != nil {
			return err
		}
		for i := range test.ObjectiveQuestions {
			test.ObjectiveQuestions[i].ID = 0
			test.ObjectiveQuestions[i].TestID = test.ID
		}
		for i := range test.EssayQuestions {
			test.EssayQuestions[i].ID = 0
			test.EssayQuestions[i].TestID = test.ID
		}
		if len(test.ObjectiveQuestions) > 0 {
			if err := tx.Create(&test.ObjectiveQuestions).Error; err != nil {
				return err
			}
		}
		if len(test.EssayQuestions) > 0 {
			if err := tx.Create(&test.EssayQuestions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *testRepository) SetStatus(ctx context.Context, id uint, status model.TestStatus) error {
	return r.updateColumn(ctx, id, "status", status)
}

func (r *testRepository) SetResultsPublished(ctx context.Context, id uint, published bool) error {
	return r.updateColumn(ctx, id, "results_published", published)
}

func (r *testRepository) SetRestrictedStudents(ctx context.Context, id uint, studentIDs []string) error {
	return r.updateColumn(ctx, id, "restricted_student_ids", datatypes.JSONSlice[string](studentIDs))
}

// updateColumn writes one column so concurrent edits of other fields survive.
func (r *testRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Test{}).Where("id = ?", id).Update(column, value).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
