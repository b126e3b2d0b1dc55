package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AccountID identifies a student, instructor or admin account.
type AccountID struct {
	value string
}

// LessonID identifies a lesson record.
type LessonID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// NewLessonID validates and normalizes a lesson id.
func NewLessonID(raw string) (LessonID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LessonID{}, fmt.Errorf("%w: empty value", ErrInvalidLessonID)
	}
	return LessonID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id LessonID) String() string {
	return id.value
}

// Role is the account role supplied by the identity collaborator.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// String returns the role value.
func (role Role) String() string {
	return string(role)
}

// LessonStatus enumerates the lesson lifecycle states.
type LessonStatus string

const (
	LessonStatusPending   LessonStatus = "pending"
	LessonStatusApproved  LessonStatus = "approved"
	LessonStatusCompleted LessonStatus = "completed"
	LessonStatusCanceled  LessonStatus = "canceled"
)

// ParseLessonStatus validates a raw status value.
func ParseLessonStatus(raw string) (LessonStatus, error) {
	switch status := LessonStatus(strings.TrimSpace(raw)); status {
	case LessonStatusPending, LessonStatusApproved, LessonStatusCompleted, LessonStatusCanceled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLessonStatus, raw)
	}
}

// String returns the status value.
func (status LessonStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no transition leaves the status.
func (status LessonStatus) IsTerminal() bool {
	return status == LessonStatusCompleted || status == LessonStatusCanceled
}

// IsUpcoming reports whether a lesson in this status still occupies its slot and awaits the session.
func (status LessonStatus) IsUpcoming() bool {
	return status == LessonStatusPending || status == LessonStatusApproved
}

// UpcomingLessonStatuses are the statuses of lessons that still await the session.
func UpcomingLessonStatuses() []LessonStatus {
	return []LessonStatus{LessonStatusPending, LessonStatusApproved}
}

// LiveLessonStatuses are the statuses that hold an instructor slot.
func LiveLessonStatuses() []LessonStatus {
	return []LessonStatus{LessonStatusPending, LessonStatusApproved, LessonStatusCompleted}
}

// NormalizeInstant converts an instant to the precision slots are matched at.
func NormalizeInstant(instant time.Time) time.Time {
	return instant.UTC().Truncate(time.Millisecond)
}

// Slot is a single bookable instant in an instructor's availability.
type Slot struct {
	DateTime    time.Time
	IsRecurring bool
}

// NewSlot validates a slot and normalizes its instant.
func NewSlot(dateTime time.Time, isRecurring bool) (Slot, error) {
	if dateTime.IsZero() {
		return Slot{}, fmt.Errorf("%w: missing date time", ErrInvalidSlot)
	}
	return Slot{DateTime: NormalizeInstant(dateTime), IsRecurring: isRecurring}, nil
}

// AvailabilitySet is the set of open slots of one instructor.
type AvailabilitySet struct {
	Instructor AccountID
	Slots      []Slot
	Version    int64
}

// Contains reports whether the set holds a slot at exactly the given instant.
func (set AvailabilitySet) Contains(instant time.Time) bool {
	normalized := NormalizeInstant(instant)
	for _, slot := range set.Slots {
		if slot.DateTime.Equal(normalized) {
			return true
		}
	}
	return false
}

// Lesson is one scheduled lesson between a student and an instructor.
type Lesson struct {
	ID                  LessonID
	Student             AccountID
	Instructor          AccountID
	DateTime            time.Time
	Status              LessonStatus
	StudentConfirmed    bool
	InstructorConfirmed bool
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Participant reports whether the account is the lesson's student or instructor.
func (lesson Lesson) Participant(accountID AccountID) bool {
	return accountID == lesson.Student || accountID == lesson.Instructor
}

// Counterpart returns the other participant.
func (lesson Lesson) Counterpart(accountID AccountID) AccountID {
	if accountID == lesson.Student {
		return lesson.Instructor
	}
	return lesson.Student
}

// Account carries the credit ledger of a user.
type Account struct {
	ID               AccountID
	Role             Role
	Email            string
	LessonsRemaining int64
	LessonsCompleted int64
}

// Actor is the authenticated caller as supplied by the identity collaborator.
type Actor struct {
	AccountID AccountID
	Role      Role
	Email     string
}

// NewActor validates identity fields.
func NewActor(rawAccountID string, rawRole string, email string) (Actor, error) {
	accountID, err := NewAccountID(rawAccountID)
	if err != nil {
		return Actor{}, err
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Actor{}, err
	}
	return Actor{AccountID: accountID, Role: role, Email: strings.TrimSpace(email)}, nil
}

// Summary is the upcoming/completed overview for one participant.
type Summary struct {
	Upcoming       []Lesson
	CompletedCount int64
}

// LessonQuery selects lessons of one participant.
type LessonQuery struct {
	Participant  AccountID
	As           Role
	Statuses     []LessonStatus
	StartingFrom time.Time
	Descending   bool
}

// Notification is a single email handed to the notifier.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Notifier dispatches notifications without blocking the caller.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	UpsertAccount(ctx context.Context, actor Actor) (Account, error)
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	LockAccount(ctx context.Context, accountID AccountID) (Account, error)
	GrantLessons(ctx context.Context, accountID AccountID, lessons int64) (Account, error)
	ConsumeLessonCredit(ctx context.Context, studentID AccountID) error
	IncrementLessonsCompleted(ctx context.Context, accountID AccountID) error
	GetAvailability(ctx context.Context, instructorID AccountID) (AvailabilitySet, error)
	LockAvailability(ctx context.Context, instructorID AccountID) (AvailabilitySet, error)
	ReplaceAvailability(ctx context.Context, instructorID AccountID, slots []Slot) (AvailabilitySet, error)
	ClaimSlot(ctx context.Context, instructorID AccountID, instant time.Time) error
	AddSlot(ctx context.Context, instructorID AccountID, slot Slot) error
	InsertLesson(ctx context.Context, lesson Lesson) error
	GetLesson(ctx context.Context, lessonID LessonID) (Lesson, error)
	LockLesson(ctx context.Context, lessonID LessonID) (Lesson, error)
	UpdateLesson(ctx context.Context, lesson Lesson, expectedVersion int64) error
	DeleteLesson(ctx context.Context, lessonID LessonID, expectedVersion int64) error
	ListLessons(ctx context.Context, query LessonQuery) ([]Lesson, error)
	CountLessons(ctx context.Context, query LessonQuery) (int64, error)
}
