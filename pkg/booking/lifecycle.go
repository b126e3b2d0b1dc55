package booking

import (
	"context"
	"fmt"
	"time"
)

// Schedule books an open instructor slot for the student actor.
// Slot removal and lesson creation commit together or not at all.
// Each pending or approved lesson of the student holds one credit until it completes or is canceled.
func (service *Service) Schedule(ctx context.Context, actor Actor, instructorID AccountID, dateTime time.Time) (Lesson, error) {
	var (
		scheduled       Lesson
		instructorEmail string
	)
	operationError := func() error {
		if err := RequireRole(actor, RoleStudent); err != nil {
			return err
		}
		if dateTime.IsZero() {
			return fmt.Errorf("%w: missing date time", ErrInvalidSlot)
		}
		instant := NormalizeInstant(dateTime)
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			student, err := transactionStore.LockAccount(ctx, actor.AccountID)
			if err != nil {
				return err
			}
			if student.LessonsRemaining <= 0 {
				return ErrInsufficientCredit
			}
			booked, err := transactionStore.CountLessons(ctx, LessonQuery{
				Participant: actor.AccountID,
				As:          RoleStudent,
				Statuses:    UpcomingLessonStatuses(),
			})
			if err != nil {
				return err
			}
			if student.LessonsRemaining <= booked {
				return fmt.Errorf("%w: %d remaining, %d already booked", ErrInsufficientCredit, student.LessonsRemaining, booked)
			}
			availability, err := transactionStore.LockAvailability(ctx, instructorID)
			if err != nil {
				return err
			}
			if !availability.Contains(instant) {
				return ErrSlotUnavailable
			}
			if err := transactionStore.ClaimSlot(ctx, instructorID, instant); err != nil {
				return err
			}
			lessonID, err := NewLessonID(service.newID())
			if err != nil {
				return err
			}
			now := service.now()
			lesson := Lesson{
				ID:         lessonID,
				Student:    actor.AccountID,
				Instructor: instructorID,
				DateTime:   instant,
				Status:     LessonStatusPending,
				Version:    1,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := transactionStore.InsertLesson(ctx, lesson); err != nil {
				return err
			}
			email, err := emailOf(ctx, transactionStore, instructorID)
			if err != nil {
				return err
			}
			scheduled = lesson
			instructorEmail = email
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationSchedule,
		Actor:      actor.AccountID,
		LessonID:   scheduled.ID,
		Instructor: instructorID,
		DateTime:   dateTime,
		Error:      operationError,
	})
	if operationError != nil {
		return Lesson{}, operationError
	}
	service.notify(ctx, scheduled.ID, Notification{
		To:      instructorEmail,
		Subject: subjectNewLessonRequest,
		Body:    bodyNewLessonRequest,
	})
	return scheduled, nil
}

// Approve moves a pending lesson to approved. Only the lesson instructor may approve.
func (service *Service) Approve(ctx context.Context, actor Actor, lessonID LessonID) (Lesson, error) {
	var (
		approved     Lesson
		studentEmail string
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		lesson, err := transactionStore.LockLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, lesson, ActionApprove); err != nil {
			return err
		}
		if lesson.Status != LessonStatusPending {
			return fmt.Errorf("%w: approve from %s", ErrInvalidTransition, lesson.Status)
		}
		expectedVersion := lesson.Version
		lesson.Status = LessonStatusApproved
		lesson.Version = expectedVersion + 1
		lesson.UpdatedAt = service.now()
		if err := transactionStore.UpdateLesson(ctx, lesson, expectedVersion); err != nil {
			return err
		}
		email, err := emailOf(ctx, transactionStore, lesson.Student)
		if err != nil {
			return err
		}
		approved = lesson
		studentEmail = email
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationApprove,
		Actor:      actor.AccountID,
		LessonID:   lessonID,
		Instructor: approved.Instructor,
		DateTime:   approved.DateTime,
		Error:      operationError,
	})
	if operationError != nil {
		return Lesson{}, operationError
	}
	service.notify(ctx, lessonID, Notification{
		To:      studentEmail,
		Subject: subjectLessonApproved,
		Body:    bodyLessonApproved,
	})
	return approved, nil
}

// Confirm records the actor's confirmation. The lesson completes, and credit moves,
// on the call that sets the second flag. Repeated confirmations change nothing.
func (service *Service) Confirm(ctx context.Context, actor Actor, lessonID LessonID) (Lesson, error) {
	var confirmed Lesson
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		lesson, err := transactionStore.LockLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, lesson, ActionConfirm); err != nil {
			return err
		}
		if lesson.Status.IsTerminal() {
			confirmed = lesson
			return nil
		}
		changed := false
		if actor.AccountID == lesson.Student && !lesson.StudentConfirmed {
			lesson.StudentConfirmed = true
			changed = true
		}
		if actor.AccountID == lesson.Instructor && !lesson.InstructorConfirmed {
			lesson.InstructorConfirmed = true
			changed = true
		}
		if !changed {
			confirmed = lesson
			return nil
		}
		completing := lesson.StudentConfirmed && lesson.InstructorConfirmed
		if completing {
			lesson.Status = LessonStatusCompleted
		}
		expectedVersion := lesson.Version
		lesson.Version = expectedVersion + 1
		lesson.UpdatedAt = service.now()
		if err := transactionStore.UpdateLesson(ctx, lesson, expectedVersion); err != nil {
			return err
		}
		if completing {
			if err := transactionStore.ConsumeLessonCredit(ctx, lesson.Student); err != nil {
				return err
			}
			if err := transactionStore.IncrementLessonsCompleted(ctx, lesson.Instructor); err != nil {
				return err
			}
		}
		confirmed = lesson
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationConfirm,
		Actor:      actor.AccountID,
		LessonID:   lessonID,
		Instructor: confirmed.Instructor,
		DateTime:   confirmed.DateTime,
		Error:      operationError,
	})
	if operationError != nil {
		return Lesson{}, operationError
	}
	return confirmed, nil
}

// Cancel removes a not yet completed lesson and returns its slot to the instructor.
func (service *Service) Cancel(ctx context.Context, actor Actor, lessonID LessonID) (Lesson, error) {
	var (
		canceled         Lesson
		counterpartEmail string
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		lesson, err := transactionStore.LockLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, lesson, ActionCancel); err != nil {
			return err
		}
		if lesson.Status.IsTerminal() {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, lesson.Status)
		}
		if err := transactionStore.DeleteLesson(ctx, lesson.ID, lesson.Version); err != nil {
			return err
		}
		if err := transactionStore.AddSlot(ctx, lesson.Instructor, Slot{DateTime: lesson.DateTime}); err != nil {
			return err
		}
		email, err := emailOf(ctx, transactionStore, lesson.Counterpart(actor.AccountID))
		if err != nil {
			return err
		}
		lesson.Status = LessonStatusCanceled
		lesson.UpdatedAt = service.now()
		canceled = lesson
		counterpartEmail = email
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationCancel,
		Actor:      actor.AccountID,
		LessonID:   lessonID,
		Instructor: canceled.Instructor,
		DateTime:   canceled.DateTime,
		Error:      operationError,
	})
	if operationError != nil {
		return Lesson{}, operationError
	}
	service.notify(ctx, lessonID, Notification{
		To:      counterpartEmail,
		Subject: subjectLessonCanceled,
		Body:    fmt.Sprintf(bodyLessonCanceled, canceled.DateTime.Format(time.RFC3339)),
	})
	return canceled, nil
}
