package booking

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

// memoryStore is an in-process Store with snapshot rollback for WithTx.
type memoryStore struct {
	accounts     map[AccountID]Account
	availability map[AccountID]AvailabilitySet
	lessons      map[LessonID]Lesson
	failures     map[string]error
	transactions int
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		accounts:     map[AccountID]Account{},
		availability: map[AccountID]AvailabilitySet{},
		lessons:      map[LessonID]Lesson{},
		failures:     map[string]error{},
	}
}

func (store *memoryStore) failOn(method string, err error) {
	store.failures[method] = err
}

func (store *memoryStore) fail(method string) error {
	return store.failures[method]
}

func (store *memoryStore) snapshot() (map[AccountID]Account, map[AccountID]AvailabilitySet, map[LessonID]Lesson) {
	accounts := make(map[AccountID]Account, len(store.accounts))
	for key, value := range store.accounts {
		accounts[key] = value
	}
	availability := make(map[AccountID]AvailabilitySet, len(store.availability))
	for key, value := range store.availability {
		value.Slots = append([]Slot(nil), value.Slots...)
		availability[key] = value
	}
	lessons := make(map[LessonID]Lesson, len(store.lessons))
	for key, value := range store.lessons {
		lessons[key] = value
	}
	return accounts, availability, lessons
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.fail("WithTx"); err != nil {
		return err
	}
	store.transactions++
	accounts, availability, lessons := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.accounts, store.availability, store.lessons = accounts, availability, lessons
		return err
	}
	return nil
}

func (store *memoryStore) UpsertAccount(_ context.Context, actor Actor) (Account, error) {
	if err := store.fail("UpsertAccount"); err != nil {
		return Account{}, err
	}
	account, exists := store.accounts[actor.AccountID]
	if !exists {
		account = Account{ID: actor.AccountID}
	}
	account.Role = actor.Role
	account.Email = actor.Email
	store.accounts[actor.AccountID] = account
	return account, nil
}

func (store *memoryStore) GetAccount(_ context.Context, accountID AccountID) (Account, error) {
	if err := store.fail("GetAccount"); err != nil {
		return Account{}, err
	}
	account, exists := store.accounts[accountID]
	if !exists {
		return Account{}, ErrUnknownAccount
	}
	return account, nil
}

func (store *memoryStore) LockAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if err := store.fail("LockAccount"); err != nil {
		return Account{}, err
	}
	return store.GetAccount(ctx, accountID)
}

func (store *memoryStore) GrantLessons(_ context.Context, accountID AccountID, lessons int64) (Account, error) {
	account, exists := store.accounts[accountID]
	if !exists {
		return Account{}, ErrUnknownAccount
	}
	account.LessonsRemaining += lessons
	store.accounts[accountID] = account
	return account, nil
}

func (store *memoryStore) ConsumeLessonCredit(_ context.Context, studentID AccountID) error {
	if err := store.fail("ConsumeLessonCredit"); err != nil {
		return err
	}
	account, exists := store.accounts[studentID]
	if !exists {
		return ErrUnknownAccount
	}
	if account.LessonsRemaining <= 0 {
		return ErrInsufficientCredit
	}
	account.LessonsRemaining--
	account.LessonsCompleted++
	store.accounts[studentID] = account
	return nil
}

func (store *memoryStore) IncrementLessonsCompleted(_ context.Context, accountID AccountID) error {
	account, exists := store.accounts[accountID]
	if !exists {
		return ErrUnknownAccount
	}
	account.LessonsCompleted++
	store.accounts[accountID] = account
	return nil
}

func (store *memoryStore) GetAvailability(_ context.Context, instructorID AccountID) (AvailabilitySet, error) {
	set, exists := store.availability[instructorID]
	if !exists {
		return AvailabilitySet{}, ErrNoAvailability
	}
	set.Slots = append([]Slot(nil), set.Slots...)
	return set, nil
}

func (store *memoryStore) LockAvailability(ctx context.Context, instructorID AccountID) (AvailabilitySet, error) {
	return store.GetAvailability(ctx, instructorID)
}

func (store *memoryStore) ReplaceAvailability(_ context.Context, instructorID AccountID, slots []Slot) (AvailabilitySet, error) {
	set := store.availability[instructorID]
	set.Instructor = instructorID
	set.Slots = append([]Slot(nil), slots...)
	set.Version++
	store.availability[instructorID] = set
	return set, nil
}

func (store *memoryStore) ClaimSlot(_ context.Context, instructorID AccountID, instant time.Time) error {
	set, exists := store.availability[instructorID]
	if !exists {
		return ErrNoAvailability
	}
	for index, slot := range set.Slots {
		if slot.DateTime.Equal(instant) {
			set.Slots = append(set.Slots[:index:index], set.Slots[index+1:]...)
			set.Version++
			store.availability[instructorID] = set
			return nil
		}
	}
	return ErrSlotUnavailable
}

func (store *memoryStore) AddSlot(_ context.Context, instructorID AccountID, slot Slot) error {
	set := store.availability[instructorID]
	set.Instructor = instructorID
	for _, existing := range set.Slots {
		if existing.DateTime.Equal(slot.DateTime) {
			return nil
		}
	}
	set.Slots = append(set.Slots, slot)
	set.Version++
	store.availability[instructorID] = set
	return nil
}

func (store *memoryStore) InsertLesson(_ context.Context, lesson Lesson) error {
	if err := store.fail("InsertLesson"); err != nil {
		return err
	}
	for _, existing := range store.lessons {
		if existing.Instructor == lesson.Instructor && existing.DateTime.Equal(lesson.DateTime) {
			return ErrSlotUnavailable
		}
	}
	store.lessons[lesson.ID] = lesson
	return nil
}

func (store *memoryStore) GetLesson(_ context.Context, lessonID LessonID) (Lesson, error) {
	lesson, exists := store.lessons[lessonID]
	if !exists {
		return Lesson{}, ErrUnknownLesson
	}
	return lesson, nil
}

func (store *memoryStore) LockLesson(ctx context.Context, lessonID LessonID) (Lesson, error) {
	return store.GetLesson(ctx, lessonID)
}

func (store *memoryStore) UpdateLesson(_ context.Context, lesson Lesson, expectedVersion int64) error {
	if err := store.fail("UpdateLesson"); err != nil {
		return err
	}
	current, exists := store.lessons[lesson.ID]
	if !exists {
		return ErrUnknownLesson
	}
	if current.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	store.lessons[lesson.ID] = lesson
	return nil
}

func (store *memoryStore) DeleteLesson(_ context.Context, lessonID LessonID, expectedVersion int64) error {
	current, exists := store.lessons[lessonID]
	if !exists {
		return ErrUnknownLesson
	}
	if current.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	delete(store.lessons, lessonID)
	return nil
}

func (store *memoryStore) ListLessons(_ context.Context, query LessonQuery) ([]Lesson, error) {
	if err := store.fail("ListLessons"); err != nil {
		return nil, err
	}
	matched := make([]Lesson, 0)
	for _, lesson := range store.lessons {
		if matchesQuery(lesson, query) {
			matched = append(matched, lesson)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		if query.Descending {
			return matched[left].DateTime.After(matched[right].DateTime)
		}
		return matched[left].DateTime.Before(matched[right].DateTime)
	})
	return matched, nil
}

func (store *memoryStore) CountLessons(ctx context.Context, query LessonQuery) (int64, error) {
	lessons, err := store.ListLessons(ctx, query)
	if err != nil {
		return 0, err
	}
	return int64(len(lessons)), nil
}

func matchesQuery(lesson Lesson, query LessonQuery) bool {
	switch query.As {
	case RoleStudent:
		if lesson.Student != query.Participant {
			return false
		}
	case RoleInstructor:
		if lesson.Instructor != query.Participant {
			return false
		}
	default:
		return false
	}
	if !query.StartingFrom.IsZero() && lesson.DateTime.Before(query.StartingFrom) {
		return false
	}
	if len(query.Statuses) == 0 {
		return true
	}
	for _, status := range query.Statuses {
		if lesson.Status == status {
			return true
		}
	}
	return false
}

func (store *memoryStore) mustAccount(test *testing.T, accountID AccountID) Account {
	test.Helper()
	account, exists := store.accounts[accountID]
	if !exists {
		test.Fatalf("account %s missing", accountID)
	}
	return account
}

func (store *memoryStore) seedAccount(account Account) {
	store.accounts[account.ID] = account
}

func (store *memoryStore) seedSlots(test *testing.T, instructorID AccountID, instants ...time.Time) {
	test.Helper()
	slots := make([]Slot, 0, len(instants))
	for _, instant := range instants {
		slots = append(slots, mustSlot(test, instant, false))
	}
	if _, err := store.ReplaceAvailability(context.Background(), instructorID, slots); err != nil {
		test.Fatalf("seed slots: %v", err)
	}
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return accountID
}

func mustSlot(test *testing.T, instant time.Time, isRecurring bool) Slot {
	test.Helper()
	slot, err := NewSlot(instant, isRecurring)
	if err != nil {
		test.Fatalf("slot %s: %v", instant, err)
	}
	return slot
}

func mustInstant(test *testing.T, raw string) time.Time {
	test.Helper()
	instant, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		test.Fatalf("instant %q: %v", raw, err)
	}
	return instant
}

func sequentialIDs() func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("lesson-%d", counter)
	}
}
