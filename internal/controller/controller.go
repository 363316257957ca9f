package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cbtengine/internal/dto"
	"github.com/lshigami/cbtengine/internal/middleware"
	"github.com/lshigami/cbtengine/internal/model"
	"github.com/lshigami/cbtengine/internal/service"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StatusFor maps a service error onto its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrQuestionSetLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a dto.ErrorResponse. Internal errors are logged
// and their text is not sent to the client.
func RespondError(ctx *gin.Context, op string, err error) {
	status := StatusFor(err)
	resp := dto.ErrorResponse{Message: http.StatusText(status)}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Message = "Validation failed"
		resp.Details = verr.Details
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Str("op", op).Str("requestID", middleware.RequestIDFrom(ctx)).Msg("Request failed")
		resp.Message = "Internal server error"
	default:
		log.Warn().Err(err).Str("op", op).Str("requestID", middleware.RequestIDFrom(ctx)).Int("status", status).Msg("Request rejected")
		resp.Details = []string{err.Error()}
	}
	ctx.JSON(status, resp)
}

// BadRequest answers 400 for binding and parsing failures.
func BadRequest(ctx *gin.Context, message string, err error) {
	resp := dto.ErrorResponse{Message: message}
	if err != nil {
		resp.Details = []string{err.Error()}
	}
	ctx.JSON(http.StatusBadRequest, resp)
}

// UintParam parses a positive numeric path parameter, answering 400 on failure.
func UintParam(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || v == 0 {
		BadRequest(ctx, "Invalid "+name+" format", err)
		return 0, false
	}
	return uint(v), true
}

// Principal returns the authenticated caller, answering 401 when absent.
func Principal(ctx *gin.Context) (model.Principal, bool) {
	p, ok := middleware.PrincipalFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Not authenticated"})
		return model.Principal{}, false
	}
	return p, true
}
