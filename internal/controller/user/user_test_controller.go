package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cbtengine/internal/controller"
	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/service"
	"github.com/rs/zerolog/log"
)

type UserTestController struct {
	attemptService service.AttemptService
	resultsService service.ResultsService
}

func NewUserTestController(attemptService service.AttemptService, resultsService service.ResultsService) *UserTestController {
	return &UserTestController{
		attemptService: attemptService,
		resultsService: resultsService,
	}
}

// ListAvailableTests godoc
// @Summary (Student) List open tests for a class
// @Description Open tests for the class, annotated with whether the caller can start each one.
// @Tags User - Tests & Attempts
// @Produce json
// @Security BearerAuth
// @Param class_id query string true "Class ID"
// @Success 200 {array} dto.AvailableTestDTO
// @Failure 400 {object} dto.ErrorResponse "Missing class_id"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /tests [get]
func (c *UserTestController) ListAvailableTests(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var query dto.AvailableTestsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		controller.BadRequest(ctx, "Invalid query", err)
		return
	}
	tests, err := c.attemptService.ListAvailableTests(ctx.Request.Context(), p.UserID, query.ClassID)
	if err != nil {
		controller.RespondError(ctx, "ListAvailableTests", err)
		return
	}
	ctx.JSON(http.StatusOK, tests)
}

// BeginAttempt godoc
// @Summary (Student) Start or reopen the attempt on a test
// @Description Creates the caller's single attempt and anchors its start time. Calling it again returns the same start time.
// @Tags User - Tests & Attempts
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.AttemptSessionDTO
// @Failure 403 {object} dto.ErrorResponse "Test not open, restricted, or already attempted"
// @Failure 404 {object} dto.ErrorResponse "Test not found"
// @Failure 500 {object} dto.ErrorResponse "Attempt could not be recorded"
// @Router /tests/{test_id}/attempt [post]
func (c *UserTestController) BeginAttempt(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	session, err := c.attemptService.BeginAttempt(ctx.Request.Context(), p.UserID, testID)
	if err != nil {
		controller.RespondError(ctx, "BeginAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, session)
}

// ResumeAttempt godoc
// @Summary (Student) Resume the attempt on a test
// @Description Returns the countdown state and saved answers. An expired attempt is submitted first.
// @Tags User - Tests & Attempts
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.AttemptSessionDTO
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "No attempt"
// @Router /tests/{test_id}/attempt [get]
func (c *UserTestController) ResumeAttempt(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	session, err := c.attemptService.ResumeAttempt(ctx.Request.Context(), p.UserID, testID)
	if err != nil {
		controller.RespondError(ctx, "ResumeAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, session)
}

// SaveProgress godoc
// @Summary (Student) Save draft answers
// @Tags User - Tests & Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param answers body dto.AnswersDTO true "Answers keyed by question ID"
// @Success 200 {object} dto.AttemptSessionDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse "Deadline passed"
// @Failure 404 {object} dto.ErrorResponse
// @Router /tests/{test_id}/attempt/progress [put]
func (c *UserTestController) SaveProgress(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.AnswersDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	session, err := c.attemptService.SaveProgress(ctx.Request.Context(), p.UserID, testID, req)
	if err != nil {
		controller.RespondError(ctx, "SaveProgress", err)
		return
	}
	ctx.JSON(http.StatusOK, session)
}

// SubmitAttempt godoc
// @Summary (Student) Submit the attempt
// @Description Freezes the answers and scores them. Submitting again returns the original receipt.
// @Tags User - Tests & Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param answers body dto.AnswersDTO false "Final answers, merged over saved drafts"
// @Success 200 {object} dto.SubmissionReceiptDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse "Answers could not be recorded"
// @Router /tests/{test_id}/attempt/submit [post]
func (c *UserTestController) SubmitAttempt(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.AnswersDTO
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			controller.BadRequest(ctx, "Invalid request body", err)
			return
		}
	}
	log.Info().Uint("testID", testID).Str("studentID", p.UserID).
		Int("objectiveAnswers", len(req.ObjectiveAnswers)).Int("essayAnswers", len(req.EssayAnswers)).
		Msg("Received attempt submission")

	receipt, err := c.attemptService.SubmitAttempt(ctx.Request.Context(), p.UserID, testID, req)
	if err != nil {
		controller.RespondError(ctx, "SubmitAttempt", err)
		return
	}
	ctx.JSON(http.StatusOK, receipt)
}

// GetResults godoc
// @Summary (Student) View results of the attempt
// @Description Scores appear only after results are published; otherwise the state is pending.
// @Tags User - Tests & Attempts
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.ResultsViewDTO
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tests/{test_id}/results [get]
func (c *UserTestController) GetResults(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	view, err := c.resultsService.GetResultsView(ctx.Request.Context(), p.UserID, testID)
	if err != nil {
		controller.RespondError(ctx, "GetResults", err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}
