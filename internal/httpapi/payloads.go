package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var errInvalidPayload = errors.New("invalid payload")

type slotRequest struct {
	DateTime    time.Time `json:"dateTime" binding:"required"`
	IsRecurring bool      `json:"isRecurring"`
}

type publishAvailabilityRequest struct {
	AvailableSlots []slotRequest `json:"availableSlots" binding:"required,dive"`
}

type scheduleRequest struct {
	InstructorID string    `json:"instructorId" binding:"required"`
	DateTime     time.Time `json:"dateTime" binding:"required"`
}

type grantLessonsRequest struct {
	Lessons int64 `json:"lessons" binding:"required,gt=0"`
}

// decodeStrict reads exactly one JSON document, rejecting unknown fields, then applies binding tags.
func decodeStrict(ctx *gin.Context, target interface{}) error {
	decoder := json.NewDecoder(ctx.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errInvalidPayload)
	}
	if err := binding.Validator.ValidateStruct(target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

type slotPayload struct {
	DateTime    time.Time `json:"dateTime"`
	IsRecurring bool      `json:"isRecurring"`
}

type availabilityPayload struct {
	InstructorID   string        `json:"instructorId"`
	AvailableSlots []slotPayload `json:"availableSlots"`
}

type lessonPayload struct {
	ID                  string    `json:"id"`
	StudentID           string    `json:"studentId"`
	InstructorID        string    `json:"instructorId"`
	DateTime            time.Time `json:"dateTime"`
	Status              string    `json:"status"`
	StudentConfirmed    bool      `json:"studentConfirmed"`
	InstructorConfirmed bool      `json:"instructorConfirmed"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type summaryPayload struct {
	UpcomingLessons       []lessonPayload `json:"upcomingLessons"`
	CompletedLessonsCount int64           `json:"completedLessonsCount"`
}

type accountPayload struct {
	ID               string `json:"id"`
	Role             string `json:"role"`
	Email            string `json:"email"`
	LessonsRemaining int64  `json:"lessonsRemaining"`
	LessonsCompleted int64  `json:"lessonsCompleted"`
}

func newAvailabilityPayload(instructorID string, set booking.AvailabilitySet) availabilityPayload {
	slots := make([]slotPayload, 0, len(set.Slots))
	for _, slot := range set.Slots {
		slots = append(slots, slotPayload{DateTime: slot.DateTime.UTC(), IsRecurring: slot.IsRecurring})
	}
	return availabilityPayload{InstructorID: instructorID, AvailableSlots: slots}
}

func newLessonPayload(lesson booking.Lesson) lessonPayload {
	return lessonPayload{
		ID:                  lesson.ID.String(),
		StudentID:           lesson.Student.String(),
		InstructorID:        lesson.Instructor.String(),
		DateTime:            lesson.DateTime.UTC(),
		Status:              lesson.Status.String(),
		StudentConfirmed:    lesson.StudentConfirmed,
		InstructorConfirmed: lesson.InstructorConfirmed,
		CreatedAt:           lesson.CreatedAt.UTC(),
		UpdatedAt:           lesson.UpdatedAt.UTC(),
	}
}

func newLessonPayloads(lessons []booking.Lesson) []lessonPayload {
	payloads := make([]lessonPayload, 0, len(lessons))
	for _, lesson := range lessons {
		payloads = append(payloads, newLessonPayload(lesson))
	}
	return payloads
}

func newAccountPayload(account booking.Account) accountPayload {
	return accountPayload{
		ID:               account.ID.String(),
		Role:             account.Role.String(),
		Email:            account.Email,
		LessonsRemaining: account.LessonsRemaining,
		LessonsCompleted: account.LessonsCompleted,
	}
}
