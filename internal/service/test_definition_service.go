package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/lshigami/cbtengine/config"
	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type TestDefinitionService interface {
	CreateTest(ctx context.Context, p model.Principal, req dto.TestCreateDTO) (*dto.TestDetailDTO, error)
	UpdateTest(ctx context.Context, p model.Principal, testID uint, patch dto.TestPatchDTO) (*dto.TestDetailDTO, error)
	SetStatus(ctx context.Context, p model.Principal, testID uint, status model.TestStatus) (*dto.TestDetailDTO, error)
	SetResultsPublished(ctx context.Context, p model.Principal, testID uint, published bool) (*dto.TestDetailDTO, error)
	SetRestrictedStudents(ctx context.Context, p model.Principal, testID uint, studentIDs []string) (*dto.TestDetailDTO, error)
	GetTest(ctx context.Context, p model.Principal, testID uint) (*dto.TestDetailDTO, error)
	ListTests(ctx context.Context, p model.Principal, query dto.TestListQuery) ([]dto.TestSummaryDTO, error)
	ListAttempts(ctx context.Context, p model.Principal, testID uint) ([]dto.AttemptSummaryDTO, error)
}

type testDefinitionService struct {
	testRepo                    repository.TestRepository
	attemptRepo                 repository.AttemptRepository
	validate                    *validator.Validate
	requireChiefAdminForPublish bool
}

func NewTestDefinitionService(testRepo repository.TestRepository, attemptRepo repository.AttemptRepository, cfg *config.Config) TestDefinitionService {
	return &testDefinitionService{
		testRepo:                    testRepo,
		attemptRepo:                 attemptRepo,
		validate:                    validator.New(),
		requireChiefAdminForPublish: cfg.Auth.RequireChiefAdminForPublish,
	}
}

// canEdit: admin always, staff only on tests they authored.
func canEdit(p model.Principal, test *model.Test) bool {
	return p.IsAdmin() || (p.IsStaff() && test.OwnedBy(p.UserID))
}

func (s *testDefinitionService) CreateTest(ctx context.Context, p model.Principal, req dto.TestCreateDTO) (*dto.TestDetailDTO, error) {
	if !p.IsAdmin() && !p.IsStaff() {
		return nil, errors.Wrapf(ErrForbidden, "role %q cannot create tests", p.Role)
	}

	test := model.Test{
		SchoolID:           req.SchoolID,
		ClassID:            req.ClassID,
		Subject:            req.Subject,
		Title:              strings.TrimSpace(req.Title),
		Category:           req.Category,
		DurationMinutes:    req.DurationMinutes,
		Status:             model.StatusDraft,
		AuthorID:           p.UserID,
		ObjectiveQuestions: toObjectiveQuestions(req.ObjectiveQuestions),
		EssayQuestions:     toEssayQuestions(req.EssayQuestions),
	}
	if err := s.validateTest(&test); err != nil {
		return nil, err
	}

	if err := s.testRepo.Create(ctx, &test); err != nil {
		log.Error().Err(err).Str("authorID", p.UserID).Msg("Failed to create test in database")
		return nil, fmt.Errorf("database error creating test: %w", err)
	}
	log.Info().Uint("testID", test.ID).Str("authorID", p.UserID).Str("category", string(test.Category)).Msg("Test created")
	return s.detail(ctx, test.ID)
}

func (s *testDefinitionService) UpdateTest(ctx context.Context, p model.Principal, testID uint, patch dto.TestPatchDTO) (*dto.TestDetailDTO, error) {
	test, err := s.loadEditable(ctx, p, testID)
	if err != nil {
		return nil, err
	}

	if patch.TouchesQuestions() {
		count, err := s.attemptRepo.CountByTest(ctx, testID)
		if err != nil {
			return nil, fmt.Errorf("database error counting attempts: %w", err)
		}
		if count > 0 {
			return nil, errors.Wrapf(ErrQuestionSetLocked, "test %d has %d attempt(s)", testID, count)
		}
	}

	if patch.ClassID != nil {
		test.ClassID = *patch.ClassID
	}
	if patch.Subject != nil {
		test.Subject = *patch.Subject
	}
	if patch.Title != nil {
		test.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Category != nil {
		test.Category = *patch.Category
	}
	if patch.DurationMinutes != nil {
		test.DurationMinutes = *patch.DurationMinutes
	}
	if patch.ObjectiveQuestions != nil {
		test.ObjectiveQuestions = toObjectiveQuestions(*patch.ObjectiveQuestions)
	}
	if patch.EssayQuestions != nil {
		test.EssayQuestions = toEssayQuestions(*patch.EssayQuestions)
	}
	if err := s.validateTest(test); err != nil {
		return nil, err
	}

	if patch.TouchesQuestions() {
		err = s.testRepo.ReplaceQuestions(ctx, test)
	} else {
		err = s.testRepo.Update(ctx, test)
	}
	if errors.Is(err, repository.ErrAttemptsExist) {
		// An attempt started between the count above and the locked write.
		return nil, errors.Wrapf(ErrQuestionSetLocked, "test %d has attempts", testID)
	}
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Msg("Failed to update test")
		return nil, fmt.Errorf("database error updating test: %w", err)
	}
	log.Info().Uint("testID", testID).Bool("questionsReplaced", patch.TouchesQuestions()).Msg("Test updated")
	return s.detail(ctx, testID)
}

func (s *testDefinitionService) SetStatus(ctx context.Context, p model.Principal, testID uint, status model.TestStatus) (*dto.TestDetailDTO, error) {
	if !p.IsAdmin() {
		return nil, errors.Wrapf(ErrForbidden, "only admins change test status")
	}
	switch status {
	case model.StatusDraft, model.StatusOpen, model.StatusClosed:
	default:
		return nil, &ValidationError{Details: []string{fmt.Sprintf("unknown status %q", status)}}
	}
	if _, err := s.find(ctx, testID); err != nil {
		return nil, err
	}
	if err := s.testRepo.SetStatus(ctx, testID, status); err != nil {
		return nil, fmt.Errorf("database error updating status: %w", err)
	}
	log.Info().Uint("testID", testID).Str("status", string(status)).Str("by", p.UserID).Msg("Test status changed")
	return s.detail(ctx, testID)
}

func (s *testDefinitionService) SetResultsPublished(ctx context.Context, p model.Principal, testID uint, published bool) (*dto.TestDetailDTO, error) {
	if !p.IsAdmin() {
		return nil, errors.Wrapf(ErrForbidden, "only admins publish results")
	}
	if s.requireChiefAdminForPublish && !p.ChiefAdmin {
		return nil, errors.Wrapf(ErrForbidden, "publishing results requires the chief admin")
	}
	if _, err := s.find(ctx, testID); err != nil {
		return nil, err
	}
	if err := s.testRepo.SetResultsPublished(ctx, testID, published); err != nil {
		return nil, fmt.Errorf("database error updating publication: %w", err)
	}
	log.Info().Uint("testID", testID).Bool("published", published).Str("by", p.UserID).Msg("Results publication changed")
	return s.detail(ctx, testID)
}

func (s *testDefinitionService) SetRestrictedStudents(ctx context.Context, p model.Principal, testID uint, studentIDs []string) (*dto.TestDetailDTO, error) {
	if _, err := s.loadEditable(ctx, p, testID); err != nil {
		return nil, err
	}
	restricted := normalizeIDSet(studentIDs)
	if err := s.testRepo.SetRestrictedStudents(ctx, testID, restricted); err != nil {
		return nil, fmt.Errorf("database error updating restrictions: %w", err)
	}
	log.Info().Uint("testID", testID).Int("restricted", len(restricted)).Msg("Test restriction list replaced")
	return s.detail(ctx, testID)
}

func (s *testDefinitionService) GetTest(ctx context.Context, p model.Principal, testID uint) (*dto.TestDetailDTO, error) {
	test, err := s.find(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !canEdit(p, test) {
		return nil, errors.Wrapf(ErrForbidden, "test %d", testID)
	}
	return toTestDetail(test)
}

func (s *testDefinitionService) ListTests(ctx context.Context, p model.Principal, query dto.TestListQuery) ([]dto.TestSummaryDTO, error) {
	if !p.IsAdmin() && !p.IsStaff() {
		return nil, errors.Wrapf(ErrForbidden, "role %q cannot list test definitions", p.Role)
	}
	filter := repository.TestFilter{
		SchoolID: query.SchoolID,
		ClassID:  query.ClassID,
		Subject:  query.Subject,
		Status:   query.Status,
	}
	if !p.IsAdmin() {
		filter.AuthorID = p.UserID
	}
	tests, err := s.testRepo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tests")
		return nil, fmt.Errorf("database error listing tests: %w", err)
	}
	out := make([]dto.TestSummaryDTO, 0, len(tests))
	for i := range tests {
		var summary dto.TestSummaryDTO
		if err := copier.Copy(&summary, &tests[i]); err != nil {
			return nil, fmt.Errorf("error preparing response data: %w", err)
		}
		summary.QuestionCount = len(tests[i].ObjectiveQuestions) + len(tests[i].EssayQuestions)
		summary.TotalMarks = tests[i].TotalMarks()
		out = append(out, summary)
	}
	return out, nil
}

func (s *testDefinitionService) ListAttempts(ctx context.Context, p model.Principal, testID uint) ([]dto.AttemptSummaryDTO, error) {
	test, err := s.find(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !canEdit(p, test) {
		return nil, errors.Wrapf(ErrForbidden, "test %d", testID)
	}
	attempts, err := s.attemptRepo.ListByTest(ctx, testID)
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Msg("Failed to list attempts")
		return nil, fmt.Errorf("database error listing attempts: %w", err)
	}
	out := make([]dto.AttemptSummaryDTO, 0, len(attempts))
	for i := range attempts {
		var summary dto.AttemptSummaryDTO
		if err := copier.Copy(&summary, &attempts[i]); err != nil {
			return nil, fmt.Errorf("error preparing response data: %w", err)
		}
		summary.Scored = attempts[i].IsScored()
		out = append(out, summary)
	}
	return out, nil
}

func (s *testDefinitionService) find(ctx context.Context, testID uint) (*model.Test, error) {
	test, err := s.testRepo.FindByIDWithQuestions(ctx, testID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "test %d", testID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error loading test %d: %w", testID, err)
	}
	return test, nil
}

func (s *testDefinitionService) loadEditable(ctx context.Context, p model.Principal, testID uint) (*model.Test, error) {
	test, err := s.find(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !canEdit(p, test) {
		return nil, errors.Wrapf(ErrForbidden, "user %s cannot edit test %d", p.UserID, testID)
	}
	return test, nil
}

func (s *testDefinitionService) detail(ctx context.Context, testID uint) (*dto.TestDetailDTO, error) {
	test, err := s.find(ctx, testID)
	if err != nil {
		return nil, err
	}
	return toTestDetail(test)
}

func (s *testDefinitionService) validateTest(test *model.Test) error {
	var details []string
	if err := s.validate.Struct(test); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	for i := range test.ObjectiveQuestions {
		if !test.ObjectiveQuestions[i].CorrectOptionInRange() {
			details = append(details, fmt.Sprintf("objective question %d: correct option %q has no matching option",
				i+1, test.ObjectiveQuestions[i].CorrectOption))
		}
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

func toObjectiveQuestions(in []dto.ObjectiveQuestionCreateDTO) []model.ObjectiveQuestion {
	out := make([]model.ObjectiveQuestion, 0, len(in))
	for i, q := range in {
		out = append(out, model.ObjectiveQuestion{
			Position:      i + 1,
			Prompt:        strings.TrimSpace(q.Prompt),
			Options:       append([]string(nil), q.Options...),
			CorrectOption: strings.ToUpper(strings.TrimSpace(q.CorrectOption)),
			Marks:         q.Marks,
		})
	}
	return out
}

func toEssayQuestions(in []dto.EssayQuestionCreateDTO) []model.EssayQuestion {
	out := make([]model.EssayQuestion, 0, len(in))
	for i, q := range in {
		out = append(out, model.EssayQuestion{
			Position:   i + 1,
			Prompt:     strings.TrimSpace(q.Prompt),
			RubricText: strings.TrimSpace(q.RubricText),
			Marks:      q.Marks,
		})
	}
	return out
}

func toTestDetail(test *model.Test) (*dto.TestDetailDTO, error) {
	var resp dto.TestDetailDTO
	if err := copier.Copy(&resp, test); err != nil {
		log.Error().Err(err).Uint("testID", test.ID).Msg("Failed to copy Test model to TestDetailDTO")
		return nil, fmt.Errorf("error preparing response data: %w", err)
	}
	resp.RestrictedStudentIDs = append([]string{}, test.RestrictedStudentIDs...)
	for i := range resp.ObjectiveQuestions {
		resp.ObjectiveQuestions[i].Options = append([]string{}, test.ObjectiveQuestions[i].Options...)
	}
	resp.TotalMarks = test.TotalMarks()
	return &resp, nil
}

// normalizeIDSet trims, drops blanks and deduplicates, returning a sorted set.
func normalizeIDSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
