package booking

import "fmt"

// Action names a lesson operation subject to authorization.
type Action string

const (
	ActionView    Action = "view"
	ActionApprove Action = "approve"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

// Authorize decides whether the actor may perform the action on the lesson.
// Only the two participating accounts may act; approval is reserved for the instructor.
func Authorize(actor Actor, lesson Lesson, action Action) error {
	switch action {
	case ActionApprove:
		if actor.AccountID != lesson.Instructor {
			return fmt.Errorf("%w: only the lesson instructor may approve", ErrNotAuthorized)
		}
		return nil
	case ActionView, ActionConfirm, ActionCancel:
		if !lesson.Participant(actor.AccountID) {
			return fmt.Errorf("%w: %s requires a lesson participant", ErrNotAuthorized, action)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrNotAuthorized, action)
	}
}

// RequireRole allows the actor when its role is one of roles.
func RequireRole(actor Actor, roles ...Role) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q", ErrNotAuthorized, actor.Role)
}
