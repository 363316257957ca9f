package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cbtengine/internal/controller"
	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/service"
	"github.com/rs/zerolog/log"
)

type AdminTestController struct {
	testService service.TestDefinitionService
}

func NewAdminTestController(testService service.TestDefinitionService) *AdminTestController {
	return &AdminTestController{testService: testService}
}

// CreateTest godoc
// @Summary (Staff/Admin) Create a new test
// @Description Defines a test with its objective and essay questions. The test starts in draft.
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_data body dto.TestCreateDTO true "Test definition"
// @Success 201 {object} dto.TestDetailDTO
// @Failure 400 {object} dto.ErrorResponse "Invalid input data"
// @Failure 403 {object} dto.ErrorResponse "Caller may not create tests"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /admin/tests [post]
func (c *AdminTestController) CreateTest(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var req dto.TestCreateDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Admin CreateTest: Failed to bind JSON")
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	resp, err := c.testService.CreateTest(ctx.Request.Context(), p, req)
	if err != nil {
		controller.RespondError(ctx, "CreateTest", err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// UpdateTest godoc
// @Summary (Staff/Admin) Update a test
// @Description Partially updates a test. Question lists cannot change once any attempt exists.
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param patch body dto.TestPatchDTO true "Fields to change"
// @Success 200 {object} dto.TestDetailDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Question set locked"
// @Router /admin/tests/{test_id} [patch]
func (c *AdminTestController) UpdateTest(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.TestPatchDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	resp, err := c.testService.UpdateTest(ctx.Request.Context(), p, testID, req)
	if err != nil {
		controller.RespondError(ctx, "UpdateTest", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SetStatus godoc
// @Summary (Admin) Set test lifecycle status
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param status body dto.SetStatusDTO true "draft, open or closed"
// @Success 200 {object} dto.TestDetailDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/tests/{test_id}/status [put]
func (c *AdminTestController) SetStatus(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.SetStatusDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	resp, err := c.testService.SetStatus(ctx.Request.Context(), p, testID, req.Status)
	if err != nil {
		controller.RespondError(ctx, "SetStatus", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SetPublication godoc
// @Summary (Admin) Publish or hide results
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param publication body dto.SetPublicationDTO true "Publication flag"
// @Success 200 {object} dto.TestDetailDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/tests/{test_id}/publication [put]
func (c *AdminTestController) SetPublication(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.SetPublicationDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	resp, err := c.testService.SetResultsPublished(ctx.Request.Context(), p, testID, *req.ResultsPublished)
	if err != nil {
		controller.RespondError(ctx, "SetPublication", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SetRestrictions godoc
// @Summary (Staff/Admin) Replace the restriction list
// @Description Students on the list can never start the test.
// @Tags Admin - Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Param restrictions body dto.SetRestrictionsDTO true "Restricted student IDs"
// @Success 200 {object} dto.TestDetailDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/tests/{test_id}/restrictions [put]
func (c *AdminTestController) SetRestrictions(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	var req dto.SetRestrictionsDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controller.BadRequest(ctx, "Invalid request body", err)
		return
	}
	resp, err := c.testService.SetRestrictedStudents(ctx.Request.Context(), p, testID, req.StudentIDs)
	if err != nil {
		controller.RespondError(ctx, "SetRestrictions", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ListTests godoc
// @Summary (Staff/Admin) List tests
// @Description Admins see every test, staff only their own.
// @Tags Admin - Tests
// @Produce json
// @Security BearerAuth
// @Param school_id query string false "School"
// @Param class_id query string false "Class"
// @Param subject query string false "Subject"
// @Param status query string false "draft, open or closed"
// @Success 200 {array} dto.TestSummaryDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /admin/tests [get]
func (c *AdminTestController) ListTests(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var query dto.TestListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		controller.BadRequest(ctx, "Invalid query", err)
		return
	}
	resp, err := c.testService.ListTests(ctx.Request.Context(), p, query)
	if err != nil {
		controller.RespondError(ctx, "ListTests", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetTest godoc
// @Summary (Staff/Admin) Get a test with answers and rubrics
// @Tags Admin - Tests
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Success 200 {object} dto.TestDetailDTO
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/tests/{test_id} [get]
func (c *AdminTestController) GetTest(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	resp, err := c.testService.GetTest(ctx.Request.Context(), p, testID)
	if err != nil {
		controller.RespondError(ctx, "GetTest", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ListAttempts godoc
// @Summary (Staff/Admin) List attempts on a test
// @Tags Admin - Tests
// @Produce json
// @Security BearerAuth
// @Param test_id path int true "Test ID"
// @Success 200 {array} dto.AttemptSummaryDTO
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/tests/{test_id}/attempts [get]
func (c *AdminTestController) ListAttempts(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	testID, ok := controller.UintParam(ctx, "test_id")
	if !ok {
		return
	}
	resp, err := c.testService.ListAttempts(ctx.Request.Context(), p, testID)
	if err != nil {
		controller.RespondError(ctx, "ListAttempts", err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}
