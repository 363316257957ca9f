package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lshigami/cbtengine/config"
	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

const SubmissionConfirmation = "Submitted successfully. Your results will be available once they are published."

type AttemptService interface {
	BeginAttempt(ctx context.Context, studentID string, testID uint) (*dto.AttemptSessionDTO, error)
	ResumeAttempt(ctx context.Context, studentID string, testID uint) (*dto.AttemptSessionDTO, error)
	SaveProgress(ctx context.Context, studentID string, testID uint, answers dto.AnswersDTO) (*dto.AttemptSessionDTO, error)
	// SubmitAttempt freezes answers merged over the saved drafts. After the
	// deadline plus grace, only the drafts are frozen, as a forced submission.
	SubmitAttempt(ctx context.Context, studentID string, testID uint, answers dto.AnswersDTO) (*dto.SubmissionReceiptDTO, error)
	// ForceSubmit freezes an expired attempt with its saved drafts. It is a
	// no-op for an attempt that is already submitted.
	ForceSubmit(ctx context.Context, attemptID uint) error
	// Rescore scores a submitted attempt whose scores were never persisted.
	Rescore(ctx context.Context, attemptID uint) error
	ListAvailableTests(ctx context.Context, studentID, classID string) ([]dto.AvailableTestDTO, error)
}

type attemptService struct {
	testRepo    repository.TestRepository
	attemptRepo repository.AttemptRepository
	scorer      ScoringEngine
	gradebook   GradebookMerger
	grace       time.Duration
	now         Clock
	inflight    singleflight.Group
}

func NewAttemptService(
	testRepo repository.TestRepository,
	attemptRepo repository.AttemptRepository,
	scorer ScoringEngine,
	gradebook GradebookMerger,
	cfg *config.Config,
	now Clock,
) AttemptService {
	if now == nil {
		now = SystemClock
	}
	return &attemptService{
		testRepo:    testRepo,
		attemptRepo: attemptRepo,
		scorer:      scorer,
		gradebook:   gradebook,
		grace:       cfg.Timer.SubmissionGrace,
		now:         now,
	}
}

func (s *attemptService) BeginAttempt(ctx context.Context, studentID string, testID uint) (*dto.AttemptSessionDTO, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	existing, err := s.findAttempt(ctx, testID, studentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		// Reload: the stored start time is returned untouched.
		return s.resume(ctx, studentID, test, existing)
	}
	if !CanStart(studentID, test, nil) {
		return nil, errors.Wrapf(ErrForbidden, "student %s cannot start test %d", studentID, testID)
	}

	attempt, err := s.attemptRepo.CreateIfAbsent(ctx, &model.Attempt{
		TestID:    testID,
		StudentID: studentID,
		StartTime: s.now(),
	})
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Str("studentID", studentID).Msg("Failed to record attempt start")
		return nil, fmt.Errorf("could not record attempt start: %w", err)
	}
	log.Info().Uint("testID", testID).Str("studentID", studentID).Uint("attemptID", attempt.ID).Time("startTime", attempt.StartTime).Msg("Attempt started")
	return s.session(test, attempt), nil
}

func (s *attemptService) ResumeAttempt(ctx context.Context, studentID string, testID uint) (*dto.AttemptSessionDTO, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.findAttempt(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	return s.resume(ctx, studentID, test, attempt)
}

func (s *attemptService) resume(ctx context.Context, studentID string, test *model.Test, attempt *model.Attempt) (*dto.AttemptSessionDTO, error) {
	if !CanResume(studentID, test, attempt) {
		return nil, errors.Wrapf(ErrForbidden, "student %s cannot resume test %d", studentID, test.ID)
	}
	if !attempt.IsSubmitted() && Expired(attempt.StartTime, test.DurationMinutes, s.now()) {
		stored, err := s.forceSubmit(ctx, test, attempt)
		if err != nil {
			return nil, err
		}
		attempt = stored
	}
	return s.session(test, attempt), nil
}

func (s *attemptService) SaveProgress(ctx context.Context, studentID string, testID uint, answers dto.AnswersDTO) (*dto.AttemptSessionDTO, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.findAttempt(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if !CanResume(studentID, test, attempt) {
		return nil, errors.Wrapf(ErrForbidden, "student %s cannot answer test %d", studentID, testID)
	}
	if attempt.IsSubmitted() {
		return s.session(test, attempt), nil
	}
	if Expired(attempt.StartTime, test.DurationMinutes, s.now()) {
		return nil, errors.Wrapf(ErrForbidden, "deadline for test %d has passed", testID)
	}

	objective := mergeAnswers(attempt.DraftObjectiveAnswers.Data(), objectiveAnswerSheet(test, answers.ObjectiveAnswers))
	essay := mergeAnswers(attempt.DraftEssayAnswers.Data(), essayAnswerSheet(test, answers.EssayAnswers))
	saved, err := s.attemptRepo.SaveDrafts(ctx, attempt.ID, objective, essay)
	if err != nil {
		log.Error().Err(err).Uint("attemptID", attempt.ID).Msg("Failed to save draft answers")
		return nil, fmt.Errorf("could not save progress: %w", err)
	}
	if !saved {
		// Submitted concurrently; report the stored state.
		stored, err := s.attemptRepo.FindByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("could not reload attempt: %w", err)
		}
		return s.session(test, stored), nil
	}
	attempt.DraftObjectiveAnswers = jsonSheet(objective)
	attempt.DraftEssayAnswers = jsonSheet(essay)
	return s.session(test, attempt), nil
}

func (s *attemptService) SubmitAttempt(ctx context.Context, studentID string, testID uint, answers dto.AnswersDTO) (*dto.SubmissionReceiptDTO, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.findAttempt(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if !CanResume(studentID, test, attempt) {
		return nil, errors.Wrapf(ErrForbidden, "student %s cannot submit test %d", studentID, testID)
	}
	if attempt.IsSubmitted() {
		log.Info().Uint("attemptID", attempt.ID).Msg("Duplicate submission ignored")
		return receipt(attempt), nil
	}

	now := s.now()
	if !now.Before(Deadline(attempt.StartTime, test.DurationMinutes).Add(s.grace)) {
		// Past the grace window only the saved drafts count.
		log.Warn().Uint("attemptID", attempt.ID).Str("studentID", studentID).Msg("Submission arrived after the grace window, freezing drafts")
		stored, err := s.forceSubmit(ctx, test, attempt)
		if err != nil {
			return nil, err
		}
		return receipt(stored), nil
	}
	sub := model.Submission{
		SubmittedTime:    now,
		Late:             Expired(attempt.StartTime, test.DurationMinutes, now),
		ObjectiveAnswers: mergeAnswers(attempt.DraftObjectiveAnswers.Data(), objectiveAnswerSheet(test, answers.ObjectiveAnswers)),
		EssayAnswers:     mergeAnswers(attempt.DraftEssayAnswers.Data(), essayAnswerSheet(test, answers.EssayAnswers)),
	}
	stored, err := s.submit(ctx, test, attempt.ID, sub)
	if err != nil {
		return nil, err
	}
	return receipt(stored), nil
}

func (s *attemptService) ForceSubmit(ctx context.Context, attemptID uint) error {
	attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("could not load attempt %d: %w", attemptID, err)
	}
	if attempt.IsSubmitted() {
		return nil
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return err
	}
	_, err = s.forceSubmit(ctx, test, attempt)
	return err
}

func (s *attemptService) forceSubmit(ctx context.Context, test *model.Test, attempt *model.Attempt) (*model.Attempt, error) {
	log.Info().Uint("attemptID", attempt.ID).Uint("testID", test.ID).Str("studentID", attempt.StudentID).Msg("Deadline passed, forcing submission")
	return s.submit(ctx, test, attempt.ID, model.Submission{
		SubmittedTime:    s.now(),
		AutoSubmitted:    true,
		ObjectiveAnswers: orEmpty(attempt.DraftObjectiveAnswers.Data()),
		EssayAnswers:     orEmpty(attempt.DraftEssayAnswers.Data()),
	})
}

// submit freezes the answers and scores them. Concurrent callers for the same
// attempt share one execution; only the first freeze wins in the database.
func (s *attemptService) submit(ctx context.Context, test *model.Test, attemptID uint, sub model.Submission) (*model.Attempt, error) {
	v, err, _ := s.inflight.Do(attemptKey(attemptID), func() (interface{}, error) {
		frozen, err := s.attemptRepo.Freeze(ctx, attemptID, sub)
		if err != nil {
			log.Error().Err(err).Uint("attemptID", attemptID).Msg("Failed to record submission")
			return nil, fmt.Errorf("could not record submission: %w", err)
		}
		if frozen {
			log.Info().Uint("attemptID", attemptID).Bool("auto", sub.AutoSubmitted).Bool("late", sub.Late).Msg("Attempt submitted")
			// The answers are durable now; scoring must not depend on the caller staying connected.
			s.scoreAndStore(context.WithoutCancel(ctx), test, attemptID, sub.ObjectiveAnswers, sub.EssayAnswers)
		} else {
			log.Info().Uint("attemptID", attemptID).Msg("Attempt already submitted, skipping")
		}
		return s.attemptRepo.FindByID(ctx, attemptID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Attempt), nil
}

func (s *attemptService) Rescore(ctx context.Context, attemptID uint) error {
	_, err, _ := s.inflight.Do(attemptKey(attemptID), func() (interface{}, error) {
		attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("could not load attempt %d: %w", attemptID, err)
		}
		if !attempt.IsSubmitted() || attempt.IsScored() {
			return attempt, nil
		}
		test, err := s.loadTest(ctx, attempt.TestID)
		if err != nil {
			return nil, err
		}
		log.Info().Uint("attemptID", attemptID).Msg("Rescoring submitted attempt without scores")
		s.scoreAndStore(ctx, test, attemptID, attempt.ObjectiveAnswers.Data(), attempt.EssayAnswers.Data())
		return attempt, nil
	})
	return err
}

// scoreAndStore never fails the submission. An attempt left unscored by a
// storage error is picked up again by the deadline sweeper.
func (s *attemptService) scoreAndStore(ctx context.Context, test *model.Test, attemptID uint, objective, essay model.AnswerSheet) {
	sheet := s.scorer.Score(ctx, test, objective, essay)
	stored, err := s.attemptRepo.SaveScores(ctx, attemptID, sheet, s.now())
	if err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Msg("Failed to persist scores")
		return
	}
	if !stored {
		return
	}
	log.Info().
		Uint("attemptID", attemptID).
		Int("objectiveScore", sheet.ObjectiveScore).
		Float64("essayScore", sheet.EssayScore).
		Float64("finalPercentage", sheet.FinalPercentage).
		Bool("needsReview", sheet.NeedsReview).
		Msg("Attempt scored")

	if sheet.NeedsReview {
		// A fallback essay score would occupy the slot and block the reviewed grade.
		log.Info().Uint("attemptID", attemptID).Msg("Gradebook merge skipped until essays are reviewed")
		return
	}
	attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Msg("Failed to reload attempt for gradebook merge")
		return
	}
	scaled := CategoryScaledScore(test.Category, sheet.RawFraction)
	if err := s.gradebook.Merge(ctx, attempt.StudentID, test.Subject, test.Category, scaled); err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Msg("Gradebook merge failed")
	}
}

func (s *attemptService) ListAvailableTests(ctx context.Context, studentID, classID string) ([]dto.AvailableTestDTO, error) {
	tests, err := s.testRepo.List(ctx, repository.TestFilter{ClassID: classID, Status: model.StatusOpen})
	if err != nil {
		log.Error().Err(err).Str("classID", classID).Msg("Failed to list open tests")
		return nil, fmt.Errorf("database error listing tests: %w", err)
	}
	ids := make([]uint, 0, len(tests))
	for _, t := range tests {
		ids = append(ids, t.ID)
	}
	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID, ids)
	if err != nil {
		return nil, fmt.Errorf("database error listing attempts: %w", err)
	}
	byTest := make(map[uint]*model.Attempt, len(attempts))
	for i := range attempts {
		byTest[attempts[i].TestID] = &attempts[i]
	}

	out := make([]dto.AvailableTestDTO, 0, len(tests))
	for i := range tests {
		t := &tests[i]
		if t.IsRestricted(studentID) {
			continue
		}
		existing := byTest[t.ID]
		out = append(out, dto.AvailableTestDTO{
			ID:              t.ID,
			Subject:         t.Subject,
			Title:           t.Title,
			Category:        t.Category,
			DurationMinutes: t.DurationMinutes,
			CanStart:        CanStart(studentID, t, existing),
			Attempted:       existing != nil,
			Submitted:       existing != nil && existing.IsSubmitted(),
		})
	}
	return out, nil
}

func (s *attemptService) loadTest(ctx context.Context, testID uint) (*model.Test, error) {
	test, err := s.testRepo.FindByIDWithQuestions(ctx, testID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "test %d", testID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error loading test %d: %w", testID, err)
	}
	return test, nil
}

func (s *attemptService) findAttempt(ctx context.Context, testID uint, studentID string) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.FindByTestAndStudent(ctx, testID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no attempt on test %d for student %s", testID, studentID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error loading attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) session(test *model.Test, attempt *model.Attempt) *dto.AttemptSessionDTO {
	now := s.now()
	out := &dto.AttemptSessionDTO{
		AttemptID:        attempt.ID,
		TestID:           test.ID,
		Title:            test.Title,
		StartTime:        attempt.StartTime,
		Deadline:         Deadline(attempt.StartTime, test.DurationMinutes),
		RemainingSeconds: int64(Remaining(attempt.StartTime, test.DurationMinutes, now).Seconds()),
		Submitted:        attempt.IsSubmitted(),
	}
	if out.Submitted {
		out.RemainingSeconds = 0
		return out
	}
	for _, q := range test.ObjectiveQuestions {
		out.ObjectiveQuestions = append(out.ObjectiveQuestions, dto.StudentObjectiveQuestionDTO{
			ID:       q.ID,
			Position: q.Position,
			Prompt:   q.Prompt,
			Options:  append([]string{}, q.Options...),
			Marks:    q.Marks,
		})
	}
	for _, q := range test.EssayQuestions {
		out.EssayQuestions = append(out.EssayQuestions, dto.StudentEssayQuestionDTO{
			ID:       q.ID,
			Position: q.Position,
			Prompt:   q.Prompt,
			Marks:    q.Marks,
		})
	}
	out.ObjectiveAnswers = attempt.DraftObjectiveAnswers.Data()
	out.EssayAnswers = attempt.DraftEssayAnswers.Data()
	return out
}

func receipt(attempt *model.Attempt) *dto.SubmissionReceiptDTO {
	r := &dto.SubmissionReceiptDTO{
		AttemptID:     attempt.ID,
		TestID:        attempt.TestID,
		AutoSubmitted: attempt.AutoSubmitted,
		Message:       SubmissionConfirmation,
	}
	if attempt.SubmittedTime != nil {
		r.SubmittedTime = *attempt.SubmittedTime
	}
	return r
}

// objectiveAnswerSheet keeps answers to the test's own objective questions,
// normalised to upper-case option letters.
func objectiveAnswerSheet(test *model.Test, in map[uint]string) model.AnswerSheet {
	out := model.AnswerSheet{}
	for _, q := range test.ObjectiveQuestions {
		if v, ok := in[q.ID]; ok {
			out[q.ID] = strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return out
}

func essayAnswerSheet(test *model.Test, in map[uint]string) model.AnswerSheet {
	out := model.AnswerSheet{}
	for _, q := range test.EssayQuestions {
		if v, ok := in[q.ID]; ok {
			out[q.ID] = v
		}
	}
	return out
}

// mergeAnswers overlays next on base without mutating either.
func mergeAnswers(base, next model.AnswerSheet) model.AnswerSheet {
	out := make(model.AnswerSheet, len(base)+len(next))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

func orEmpty(sheet model.AnswerSheet) model.AnswerSheet {
	if sheet == nil {
		return model.AnswerSheet{}
	}
	return sheet
}

func attemptKey(id uint) string {
	return "attempt-" + strconv.FormatUint(uint64(id), 10)
}

func jsonSheet(sheet model.AnswerSheet) datatypes.JSONType[model.AnswerSheet] {
	return datatypes.NewJSONType(sheet)
}
