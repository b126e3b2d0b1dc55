package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleGetAvailability(ctx *gin.Context) {
	instructorID, err := booking.NewAccountID(ctx.Param("instructorId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	set, err := handler.service.Availability(ctx.Request.Context(), instructorID)
	if err != nil && !errors.Is(err, booking.ErrNoAvailability) {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newAvailabilityPayload(instructorID.String(), set))
}

func (handler *httpHandler) handlePublishAvailability(ctx *gin.Context) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request publishAvailabilityRequest
	if err := decodeStrict(ctx, &request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	slots := make([]booking.Slot, 0, len(request.AvailableSlots))
	for _, slot := range request.AvailableSlots {
		slots = append(slots, booking.Slot{DateTime: slot.DateTime, IsRecurring: slot.IsRecurring})
	}
	set, err := handler.service.PublishAvailability(ctx.Request.Context(), actor, slots)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newAvailabilityPayload(actor.AccountID.String(), set))
}

func (handler *httpHandler) handleSchedule(ctx *gin.Context) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request scheduleRequest
	if err := decodeStrict(ctx, &request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	instructorID, err := booking.NewAccountID(request.InstructorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	lesson, err := handler.service.Schedule(ctx.Request.Context(), actor, instructorID, request.DateTime)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"lesson": newLessonPayload(lesson)})
}

type lessonAction func(ctx context.Context, actor booking.Actor, lessonID booking.LessonID) (booking.Lesson, error)

// handleLessonAction serves the by-id lesson routes, which differ only in the service call.
func (handler *httpHandler) handleLessonAction(action lessonAction) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, ok := getActor(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		lessonID, err := booking.NewLessonID(ctx.Param("id"))
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		lesson, err := action(ctx.Request.Context(), actor, lessonID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"lesson": newLessonPayload(lesson)})
	}
}

func (handler *httpHandler) handleListLessons(ctx *gin.Context) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	lessons, err := handler.service.Lessons(ctx.Request.Context(), actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lessons": newLessonPayloads(lessons)})
}

func (handler *httpHandler) handleInstructorSummary(ctx *gin.Context) {
	handler.respondSummary(ctx, booking.RoleInstructor)
}

func (handler *httpHandler) handleStudentSummary(ctx *gin.Context) {
	handler.respondSummary(ctx, booking.RoleStudent)
}

func (handler *httpHandler) respondSummary(ctx *gin.Context, role booking.Role) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	summary, err := handler.service.Summary(ctx.Request.Context(), actor, role)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, summaryPayload{
		UpcomingLessons:       newLessonPayloads(summary.Upcoming),
		CompletedLessonsCount: summary.CompletedCount,
	})
}

func (handler *httpHandler) handleAccount(ctx *gin.Context) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	account, err := handler.service.Account(ctx.Request.Context(), actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleGrantLessons(ctx *gin.Context) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	accountID, err := booking.NewAccountID(ctx.Param("accountId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request grantLessonsRequest
	if err := decodeStrict(ctx, &request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	account, err := handler.service.GrantLessons(ctx.Request.Context(), actor, accountID, request.Lessons)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}
