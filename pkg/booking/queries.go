package booking

import (
	"context"
	"fmt"
)

// Lesson returns a lesson visible to the actor.
func (service *Service) Lesson(ctx context.Context, actor Actor, lessonID LessonID) (Lesson, error) {
	lesson, err := service.store.GetLesson(ctx, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if err := Authorize(actor, lesson, ActionView); err != nil {
		return Lesson{}, err
	}
	return lesson, nil
}

// Lessons lists every lesson of the actor in its role, soonest first.
func (service *Service) Lessons(ctx context.Context, actor Actor) ([]Lesson, error) {
	if err := RequireRole(actor, RoleStudent, RoleInstructor); err != nil {
		return nil, err
	}
	return service.store.ListLessons(ctx, LessonQuery{Participant: actor.AccountID, As: actor.Role})
}

// Summary returns upcoming pending/approved lessons and the completed count of the actor.
func (service *Service) Summary(ctx context.Context, actor Actor, role Role) (Summary, error) {
	if role != RoleStudent && role != RoleInstructor {
		return Summary{}, fmt.Errorf("%w: summary for %q", ErrInvalidRole, role)
	}
	if err := RequireRole(actor, role); err != nil {
		return Summary{}, err
	}
	upcoming, err := service.store.ListLessons(ctx, LessonQuery{
		Participant:  actor.AccountID,
		As:           role,
		Statuses:     UpcomingLessonStatuses(),
		StartingFrom: service.now(),
	})
	if err != nil {
		return Summary{}, err
	}
	completed, err := service.store.CountLessons(ctx, LessonQuery{
		Participant: actor.AccountID,
		As:          role,
		Statuses:    []LessonStatus{LessonStatusCompleted},
	})
	if err != nil {
		return Summary{}, err
	}
	return Summary{Upcoming: upcoming, CompletedCount: completed}, nil
}
