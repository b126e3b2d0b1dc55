package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first sentinel matched by errors.Is wins.
var errorMappings = []errorMapping{
	{target: booking.ErrInsufficientCredit, status: http.StatusBadRequest, code: "insufficient_credit", message: "No lessons remaining"},
	{target: booking.ErrNoAvailability, status: http.StatusBadRequest, code: "no_availability", message: "Instructor has no availability"},
	{target: booking.ErrSlotUnavailable, status: http.StatusConflict, code: "slot_unavailable", message: "Selected slot is not available"},
	{target: booking.ErrNotAuthorized, status: http.StatusForbidden, code: "not_authorized", message: "Not authorized"},
	{target: booking.ErrNotFound, status: http.StatusNotFound, code: "not_found", message: "Not found"},
	{target: booking.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition", message: "Lesson cannot make that transition"},
	{target: booking.ErrConcurrencyConflict, status: http.StatusConflict, code: "concurrency_conflict", message: "Concurrent update, retry the request"},
	{target: booking.ErrDuplicateSlot, status: http.StatusBadRequest, code: "duplicate_slot", message: "Slots must not repeat an instant"},
	{target: booking.ErrInvalidSlot, status: http.StatusBadRequest, code: "invalid_slot", message: "Invalid slot"},
	{target: booking.ErrInvalidLessonCount, status: http.StatusBadRequest, code: "invalid_lesson_count", message: "Lesson count must be positive"},
	{target: booking.ErrInvalidAccountID, status: http.StatusBadRequest, code: "invalid_account_id", message: "Invalid account id"},
	{target: booking.ErrInvalidLessonID, status: http.StatusBadRequest, code: "invalid_lesson_id", message: "Invalid lesson id"},
	{target: booking.ErrInvalidRole, status: http.StatusBadRequest, code: "invalid_role", message: "Invalid role"},
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps domain errors to client responses; anything unrecognized is logged and hidden.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, mapping.message))
			return
		}
	}
	handler.logger.Error("request failed",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.FullPath()),
		zap.Error(err),
	)
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal server error"))
}
