package service

import (
	"context"
	"sync"
	"time"

	"github.com/lshigami/cbtengine/config"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/repository"
	"gorm.io/datatypes"
)

type fakeTestRepo struct {
	mu     sync.Mutex
	nextID uint
	tests  map[uint]*model.Test
	// attempts backs the attempt check in ReplaceQuestions.
	attempts *fakeAttemptRepo
}

func newFakeTestRepo(tests ...*model.Test) *fakeTestRepo {
	r := &fakeTestRepo{tests: map[uint]*model.Test{}}
	for _, t := range tests {
		if err := r.Create(context.Background(), t); err != nil {
			panic(err)
		}
	}
	return r
}

func cloneTest(t *model.Test) *model.Test {
	c := *t
	c.ObjectiveQuestions = append([]model.ObjectiveQuestion(nil), t.ObjectiveQuestions...)
	c.EssayQuestions = append([]model.EssayQuestion(nil), t.EssayQuestions...)
	c.RestrictedStudentIDs = append(datatypes.JSONSlice[string](nil), t.RestrictedStudentIDs...)
	return &c
}

func (r *fakeTestRepo) assignQuestionIDs(t *model.Test) {
	for i := range t.ObjectiveQuestions {
		if t.ObjectiveQuestions[i].ID == 0 {
			r.nextID++
			t.ObjectiveQuestions[i].ID = 1000 + r.nextID
		}
		t.ObjectiveQuestions[i].TestID = t.ID
	}
	for i := range t.EssayQuestions {
		if t.EssayQuestions[i].ID == 0 {
			r.nextID++
			t.EssayQuestions[i].ID = 1000 + r.nextID
		}
		t.EssayQuestions[i].TestID = t.ID
	}
}

func (r *fakeTestRepo) Create(_ context.Context, t *model.Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	r.assignQuestionIDs(t)
	r.tests[t.ID] = cloneTest(t)
	return nil
}

func (r *fakeTestRepo) FindByID(ctx context.Context, id uint) (*model.Test, error) {
	return r.FindByIDWithQuestions(ctx, id)
}

func (r *fakeTestRepo) FindByIDWithQuestions(_ context.Context, id uint) (*model.Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTest(t), nil
}

func (r *fakeTestRepo) List(_ context.Context, f repository.TestFilter) ([]model.Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Test
	for id := uint(1); id <= r.nextID; id++ {
		t, ok := r.tests[id]
		if !ok {
			continue
		}
		if (f.SchoolID != "" && t.SchoolID != f.SchoolID) ||
			(f.ClassID != "" && t.ClassID != f.ClassID) ||
			(f.Subject != "" && t.Subject != f.Subject) ||
			(f.Status != "" && t.Status != f.Status) ||
			(f.AuthorID != "" && t.AuthorID != f.AuthorID) {
			continue
		}
		out = append(out, *cloneTest(t))
	}
	return out, nil
}

func (r *fakeTestRepo) Update(_ context.Context, t *model.Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tests[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	copyDefinition(stored, t)
	return nil
}

func copyDefinition(dst, src *model.Test) {
	dst.ClassID = src.ClassID
	dst.Subject = src.Subject
	dst.Title = src.Title
	dst.Category = src.Category
	dst.DurationMinutes = src.DurationMinutes
}

func (r *fakeTestRepo) ReplaceQuestions(ctx context.Context, t *model.Test) error {
	if r.attempts != nil {
		n, err := r.attempts.CountByTest(ctx, t.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return repository.ErrAttemptsExist
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tests[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range t.ObjectiveQuestions {
		t.ObjectiveQuestions[i].ID = 0
	}
	for i := range t.EssayQuestions {
		t.EssayQuestions[i].ID = 0
	}
	r.assignQuestionIDs(t)
	copyDefinition(stored, t)
	stored.ObjectiveQuestions = append([]model.ObjectiveQuestion(nil), t.ObjectiveQuestions...)
	stored.EssayQuestions = append([]model.EssayQuestion(nil), t.EssayQuestions...)
	return nil
}

func (r *fakeTestRepo) setField(id uint, set func(*model.Test)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tests[id]
	if !ok {
		return repository.ErrNotFound
	}
	set(stored)
	return nil
}

func (r *fakeTestRepo) SetStatus(_ context.Context, id uint, status model.TestStatus) error {
	return r.setField(id, func(t *model.Test) { t.Status = status })
}

func (r *fakeTestRepo) SetResultsPublished(_ context.Context, id uint, published bool) error {
	return r.setField(id, func(t *model.Test) { t.ResultsPublished = published })
}

func (r *fakeTestRepo) SetRestrictedStudents(_ context.Context, id uint, studentIDs []string) error {
	return r.setField(id, func(t *model.Test) {
		t.RestrictedStudentIDs = append(datatypes.JSONSlice[string](nil), studentIDs...)
	})
}

type fakeAttemptRepo struct {
	mu          sync.Mutex
	nextID      uint
	attempts    map[uint]*model.Attempt
	tests       *fakeTestRepo
	createErr   error
	saveScoreFn func() error
	freezeCalls int
	scoreWrites int
}

func newFakeAttemptRepo(tests *fakeTestRepo) *fakeAttemptRepo {
	r := &fakeAttemptRepo{attempts: map[uint]*model.Attempt{}, tests: tests}
	if tests != nil {
		tests.attempts = r
	}
	return r
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	return &c
}

func (r *fakeAttemptRepo) CreateIfAbsent(_ context.Context, a *model.Attempt) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, existing := range r.attempts {
		if existing.TestID == a.TestID && existing.StudentID == a.StudentID {
			return cloneAttempt(existing), nil
		}
	}
	r.nextID++
	a.ID = r.nextID
	r.attempts[a.ID] = cloneAttempt(a)
	return cloneAttempt(a), nil
}

func (r *fakeAttemptRepo) FindByID(_ context.Context, id uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (r *fakeAttemptRepo) FindByTestAndStudent(_ context.Context, testID uint, studentID string) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.TestID == testID && a.StudentID == studentID {
			return cloneAttempt(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAttemptRepo) ListByTest(_ context.Context, testID uint) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attempt
	for id := uint(1); id <= r.nextID; id++ {
		if a, ok := r.attempts[id]; ok && a.TestID == testID {
			out = append(out, *cloneAttempt(a))
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) ListByStudent(_ context.Context, studentID string, testIDs []uint) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[uint]bool{}
	for _, id := range testIDs {
		wanted[id] = true
	}
	var out []model.Attempt
	for _, a := range r.attempts {
		if a.StudentID == studentID && wanted[a.TestID] {
			out = append(out, *cloneAttempt(a))
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) CountByTest(_ context.Context, testID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.attempts {
		if a.TestID == testID {
			n++
		}
	}
	return n, nil
}

func (r *fakeAttemptRepo) SaveDrafts(_ context.Context, id uint, objective, essay model.AnswerSheet) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok || a.IsSubmitted() {
		return false, nil
	}
	a.DraftObjectiveAnswers = datatypes.NewJSONType(objective)
	a.DraftEssayAnswers = datatypes.NewJSONType(essay)
	return true, nil
}

func (r *fakeAttemptRepo) Freeze(_ context.Context, id uint, sub model.Submission) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freezeCalls++
	a, ok := r.attempts[id]
	if !ok || a.IsSubmitted() {
		return false, nil
	}
	ts := sub.SubmittedTime
	a.SubmittedTime = &ts
	a.AutoSubmitted = sub.AutoSubmitted
	a.Late = sub.Late
	a.ObjectiveAnswers = datatypes.NewJSONType(sub.ObjectiveAnswers)
	a.EssayAnswers = datatypes.NewJSONType(sub.EssayAnswers)
	return true, nil
}

func (r *fakeAttemptRepo) SaveScores(_ context.Context, id uint, sheet model.ScoreSheet, scoredAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveScoreFn != nil {
		if err := r.saveScoreFn(); err != nil {
			return false, err
		}
	}
	a, ok := r.attempts[id]
	if !ok || !a.IsSubmitted() || a.IsScored() {
		return false, nil
	}
	r.scoreWrites++
	a.ScoredAt = &scoredAt
	a.ObjectiveScore = sheet.ObjectiveScore
	a.EssayResults = datatypes.NewJSONType(sheet.EssayResults)
	a.EssayScore = sheet.EssayScore
	a.FinalPercentage = sheet.FinalPercentage
	a.NeedsReview = sheet.NeedsReview
	return true, nil
}

func (r *fakeAttemptRepo) ListExpiredUnsubmitted(ctx context.Context, cutoff time.Time) ([]model.Attempt, error) {
	r.mu.Lock()
	candidates := make([]model.Attempt, 0)
	for _, a := range r.attempts {
		if !a.IsSubmitted() {
			candidates = append(candidates, *cloneAttempt(a))
		}
	}
	r.mu.Unlock()

	var out []model.Attempt
	for _, a := range candidates {
		t, err := r.tests.FindByID(ctx, a.TestID)
		if err != nil {
			continue
		}
		if Deadline(a.StartTime, t.DurationMinutes).Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) ListUnscored(_ context.Context, submittedBefore time.Time) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attempt
	for _, a := range r.attempts {
		if a.IsSubmitted() && !a.IsScored() && a.SubmittedTime.Before(submittedBefore) {
			out = append(out, *cloneAttempt(a))
		}
	}
	return out, nil
}

type gradebookCall struct {
	StudentID string
	Subject   string
	Category  model.TestCategory
	Score     float64
}

type fakeGradebook struct {
	mu    sync.Mutex
	calls []gradebookCall
	err   error
}

func (g *fakeGradebook) Merge(_ context.Context, studentID, subject string, category model.TestCategory, score float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gradebookCall{studentID, subject, category, score})
	return g.err
}

// scriptedEvaluator answers from a function and counts calls.
type scriptedEvaluator struct {
	mu    sync.Mutex
	calls int
	reqs  []EvaluationRequest
	fn    func(call int, req EvaluationRequest) (EvaluationResponse, error)
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()
	return e.fn(call, req)
}

func (e *scriptedEvaluator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func fixedScore(score float64, feedback string) *scriptedEvaluator {
	return &scriptedEvaluator{fn: func(int, EvaluationRequest) (EvaluationResponse, error) {
		return EvaluationResponse{Score: score, Feedback: feedback, IsCompliant: true}, nil
	}}
}

// manualClock is a Clock tests can move forward.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock { return &manualClock{now: t} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// examTest is a 2-mark objective question (answer B) plus a 10-mark essay.
func examTest() *model.Test {
	return &model.Test{
		SchoolID:        "school-1",
		ClassID:         "jss2-a",
		Subject:         "english",
		Title:           "Second term exam",
		Category:        model.CategoryExam,
		DurationMinutes: 30,
		Status:          model.StatusOpen,
		AuthorID:        "staff-1",
		ObjectiveQuestions: []model.ObjectiveQuestion{{
			Position:      1,
			Prompt:        "Pick the noun",
			Options:       datatypes.JSONSlice[string]{"run", "table", "quickly"},
			CorrectOption: "B",
			Marks:         2,
		}},
		EssayQuestions: []model.EssayQuestion{{
			Position:   1,
			Prompt:     "Describe your school",
			RubricText: "Structure, grammar, relevance",
			Marks:      10,
		}},
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.RequireChiefAdminForPublish = true
	cfg.Timer.SweepInterval = time.Second
	cfg.Timer.SubmissionGrace = 30 * time.Second
	cfg.Timer.RescoreAfter = 5 * time.Minute
	return cfg
}
