package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode     = "23505"
	pgSerializationFailure    = "40001"
	pgDeadlockDetected        = "40P01"
	sqliteConstraintCode      = 19
	sqliteBusyCode            = 5
	sqliteLockedCode          = 6
	errorOperationStore       = "store"
	errorSubjectAccount       = "account"
	errorSubjectAvailability  = "availability"
	errorSubjectSlot          = "slot"
	errorSubjectLesson        = "lesson"
	errorSubjectTransaction   = "transaction"
	errorCodeCommit           = "commit"
	errorCodeClaim            = "claim"
	errorCodeCount            = "count"
	errorCodeCreate           = "create"
	errorCodeDelete           = "delete"
	errorCodeGet              = "get"
	errorCodeGrant            = "grant"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeReplace          = "replace"
	errorCodeUpdate           = "update"
	errorCodeUpsert           = "upsert"
	columnLessonsRemaining    = "lessons_remaining"
	columnLessonsCompleted    = "lessons_completed"
	columnUpdatedAt           = "updated_at"
	columnVersion             = "version"
	lockStrengthUpdate        = "UPDATE"
	orderStartsAtAscending    = "starts_at_unix_ms ASC"
	orderStartsAtDescending   = "starts_at_unix_ms DESC"
	whereAccountID            = "account_id = ?"
	whereInstructorID         = "instructor_id = ?"
	whereInstructorSlot       = "instructor_id = ? AND starts_at_unix_ms = ?"
	whereLessonID             = "lesson_id = ?"
	whereLessonVersion        = "lesson_id = ? AND version = ?"
	whereStudentID            = "student_id = ?"
	whereStatusIn             = "status IN ?"
	whereStartsAtFrom         = "starts_at_unix_ms >= ?"
	whereCreditAvailable      = "account_id = ? AND lessons_remaining > 0"
	expressionIncrement       = " + 1"
	expressionDecrement       = " - 1"
	expressionVersionIncrease = "availability_sets.version + 1"
)

// Store implements booking.Store using GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, now: store.now})
	})
	if isBusy(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, booking.ErrConcurrencyConflict)
	}
	return err
}

func (store *Store) UpsertAccount(ctx context.Context, actor booking.Actor) (booking.Account, error) {
	now := store.now().UTC()
	model := Account{
		AccountID: actor.AccountID.String(),
		Role:      actor.Role.String(),
		Email:     actor.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "email", columnUpdatedAt}),
		}).
		Create(&model).Error
	if err != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeUpsert, classify(err, nil))
	}
	return store.GetAccount(ctx, actor.AccountID)
}

func (store *Store) GetAccount(ctx context.Context, accountID booking.AccountID) (booking.Account, error) {
	return store.loadAccount(store.db.WithContext(ctx), accountID)
}

// LockAccount reads the account while holding its row lock until the transaction ends.
func (store *Store) LockAccount(ctx context.Context, accountID booking.AccountID) (booking.Account, error) {
	return store.loadAccount(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), accountID)
}

func (store *Store) loadAccount(query *gorm.DB, accountID booking.AccountID) (booking.Account, error) {
	var model Account
	err := query.Where(whereAccountID, accountID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, booking.ErrUnknownAccount)
		}
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, classify(err, nil))
	}
	account, err := mapAccount(model)
	if err != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) GrantLessons(ctx context.Context, accountID booking.AccountID, lessons int64) (booking.Account, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where(whereAccountID, accountID.String()).
		Updates(map[string]interface{}{
			columnLessonsRemaining: gorm.Expr(columnLessonsRemaining+" + ?", lessons),
			columnUpdatedAt:        store.now().UTC(),
		})
	if result.Error != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGrant, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGrant, booking.ErrUnknownAccount)
	}
	return store.GetAccount(ctx, accountID)
}

// ConsumeLessonCredit moves one lesson from remaining to completed; it never drives remaining below zero.
func (store *Store) ConsumeLessonCredit(ctx context.Context, studentID booking.AccountID) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where(whereCreditAvailable, studentID.String()).
		Updates(map[string]interface{}{
			columnLessonsRemaining: gorm.Expr(columnLessonsRemaining + expressionDecrement),
			columnLessonsCompleted: gorm.Expr(columnLessonsCompleted + expressionIncrement),
			columnUpdatedAt:        store.now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetAccount(ctx, studentID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, booking.ErrInsufficientCredit)
	}
	return nil
}

func (store *Store) IncrementLessonsCompleted(ctx context.Context, accountID booking.AccountID) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where(whereAccountID, accountID.String()).
		Updates(map[string]interface{}{
			columnLessonsCompleted: gorm.Expr(columnLessonsCompleted + expressionIncrement),
			columnUpdatedAt:        store.now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, booking.ErrUnknownAccount)
	}
	return nil
}

func (store *Store) GetAvailability(ctx context.Context, instructorID booking.AccountID) (booking.AvailabilitySet, error) {
	return store.loadAvailability(ctx, store.db.WithContext(ctx), instructorID)
}

// LockAvailability reads the set while holding its row lock until the transaction ends.
func (store *Store) LockAvailability(ctx context.Context, instructorID booking.AccountID) (booking.AvailabilitySet, error) {
	return store.loadAvailability(ctx, store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), instructorID)
}

func (store *Store) loadAvailability(ctx context.Context, query *gorm.DB, instructorID booking.AccountID) (booking.AvailabilitySet, error) {
	var set AvailabilitySet
	err := query.Where(whereInstructorID, instructorID.String()).Take(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.AvailabilitySet{}, wrapStoreError(errorSubjectAvailability, errorCodeGet, booking.ErrNoAvailability)
		}
		return booking.AvailabilitySet{}, wrapStoreError(errorSubjectAvailability, errorCodeGet, classify(err, nil))
	}
	var rows []AvailabilitySlot
	err = store.db.WithContext(ctx).Where(whereInstructorID, instructorID.String()).Order(orderStartsAtAscending).Find(&rows).Error
	if err != nil {
		return booking.AvailabilitySet{}, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	slots := make([]booking.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, booking.Slot{DateTime: fromUnixMillis(row.StartsAtUnixMs), IsRecurring: row.IsRecurring})
	}
	return booking.AvailabilitySet{Instructor: instructorID, Slots: slots, Version: set.Version}, nil
}

func (store *Store) ReplaceAvailability(ctx context.Context, instructorID booking.AccountID, slots []booking.Slot) (booking.AvailabilitySet, error) {
	db := store.db.WithContext(ctx)
	if err := store.touchAvailability(db, instructorID); err != nil {
		return booking.AvailabilitySet{}, err
	}
	err := db.Where(whereInstructorID, instructorID.String()).Delete(&AvailabilitySlot{}).Error
	if err != nil {
		return booking.AvailabilitySet{}, wrapStoreError(errorSubjectSlot, errorCodeReplace, classify(err, nil))
	}
	if len(slots) > 0 {
		rows := make([]AvailabilitySlot, 0, len(slots))
		for _, slot := range slots {
			rows = append(rows, AvailabilitySlot{
				InstructorID:   instructorID.String(),
				StartsAtUnixMs: toUnixMillis(slot.DateTime),
				IsRecurring:    slot.IsRecurring,
			})
		}
		if err := db.Create(&rows).Error; err != nil {
			return booking.AvailabilitySet{}, wrapStoreError(errorSubjectSlot, errorCodeReplace, classify(err, booking.ErrDuplicateSlot))
		}
	}
	return store.loadAvailability(ctx, db, instructorID)
}

// ClaimSlot removes the slot at instant; a slot already gone yields ErrSlotUnavailable.
func (store *Store) ClaimSlot(ctx context.Context, instructorID booking.AccountID, instant time.Time) error {
	db := store.db.WithContext(ctx)
	result := db.Where(whereInstructorSlot, instructorID.String(), toUnixMillis(instant)).Delete(&AvailabilitySlot{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeClaim, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeClaim, booking.ErrSlotUnavailable)
	}
	return store.touchAvailability(db, instructorID)
}

// AddSlot returns a slot to the instructor's set, creating the set when needed.
func (store *Store) AddSlot(ctx context.Context, instructorID booking.AccountID, slot booking.Slot) error {
	db := store.db.WithContext(ctx)
	if err := store.touchAvailability(db, instructorID); err != nil {
		return err
	}
	row := AvailabilitySlot{
		InstructorID:   instructorID.String(),
		StartsAtUnixMs: toUnixMillis(slot.DateTime),
		IsRecurring:    slot.IsRecurring,
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeCreate, classify(err, nil))
	}
	return nil
}

// touchAvailability creates the set row or bumps its version.
func (store *Store) touchAvailability(db *gorm.DB, instructorID booking.AccountID) error {
	now := store.now().UTC()
	set := AvailabilitySet{InstructorID: instructorID.String(), Version: 1, CreatedAt: now, UpdatedAt: now}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instructor_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			columnVersion:   gorm.Expr(expressionVersionIncrease),
			columnUpdatedAt: now,
		}),
	}).Create(&set).Error
	if err != nil {
		return wrapStoreError(errorSubjectAvailability, errorCodeUpsert, classify(err, nil))
	}
	return nil
}

func (store *Store) InsertLesson(ctx context.Context, lesson booking.Lesson) error {
	model := Lesson{
		LessonID:            lesson.ID.String(),
		StudentID:           lesson.Student.String(),
		InstructorID:        lesson.Instructor.String(),
		StartsAtUnixMs:      toUnixMillis(lesson.DateTime),
		Status:              lesson.Status.String(),
		StudentConfirmed:    lesson.StudentConfirmed,
		InstructorConfirmed: lesson.InstructorConfirmed,
		Version:             lesson.Version,
		CreatedAt:           lesson.CreatedAt.UTC(),
		UpdatedAt:           lesson.UpdatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectLesson, errorCodeInsert, classify(err, booking.ErrSlotUnavailable))
	}
	return nil
}

func (store *Store) GetLesson(ctx context.Context, lessonID booking.LessonID) (booking.Lesson, error) {
	return store.loadLesson(store.db.WithContext(ctx), lessonID)
}

// LockLesson reads the lesson while holding its row lock until the transaction ends.
func (store *Store) LockLesson(ctx context.Context, lessonID booking.LessonID) (booking.Lesson, error) {
	return store.loadLesson(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), lessonID)
}

func (store *Store) loadLesson(query *gorm.DB, lessonID booking.LessonID) (booking.Lesson, error) {
	var model Lesson
	err := query.Where(whereLessonID, lessonID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Lesson{}, wrapStoreError(errorSubjectLesson, errorCodeGet, booking.ErrUnknownLesson)
		}
		return booking.Lesson{}, wrapStoreError(errorSubjectLesson, errorCodeGet, classify(err, nil))
	}
	lesson, err := mapLesson(model)
	if err != nil {
		return booking.Lesson{}, wrapStoreError(errorSubjectLesson, errorCodeInvalid, err)
	}
	return lesson, nil
}

// UpdateLesson writes the mutable lesson fields when the stored version still matches.
func (store *Store) UpdateLesson(ctx context.Context, lesson booking.Lesson, expectedVersion int64) error {
	result := store.db.WithContext(ctx).
		Model(&Lesson{}).
		Where(whereLessonVersion, lesson.ID.String(), expectedVersion).
		Updates(map[string]interface{}{
			"status":               lesson.Status.String(),
			"student_confirmed":    lesson.StudentConfirmed,
			"instructor_confirmed": lesson.InstructorConfirmed,
			columnVersion:          lesson.Version,
			columnUpdatedAt:        lesson.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectLesson, errorCodeUpdate, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		return store.versionMismatch(ctx, lesson.ID, errorCodeUpdate)
	}
	return nil
}

func (store *Store) DeleteLesson(ctx context.Context, lessonID booking.LessonID, expectedVersion int64) error {
	result := store.db.WithContext(ctx).
		Where(whereLessonVersion, lessonID.String(), expectedVersion).
		Delete(&Lesson{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectLesson, errorCodeDelete, classify(result.Error, nil))
	}
	if result.RowsAffected == 0 {
		return store.versionMismatch(ctx, lessonID, errorCodeDelete)
	}
	return nil
}

func (store *Store) versionMismatch(ctx context.Context, lessonID booking.LessonID, code string) error {
	if _, err := store.GetLesson(ctx, lessonID); err != nil {
		return err
	}
	return wrapStoreError(errorSubjectLesson, code, booking.ErrConcurrencyConflict)
}

func (store *Store) ListLessons(ctx context.Context, query booking.LessonQuery) ([]booking.Lesson, error) {
	scoped, err := store.lessonScope(ctx, query)
	if err != nil {
		return nil, err
	}
	order := orderStartsAtAscending
	if query.Descending {
		order = orderStartsAtDescending
	}
	var rows []Lesson
	if err := scoped.Order(order).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectLesson, errorCodeList, classify(err, nil))
	}
	lessons := make([]booking.Lesson, 0, len(rows))
	for _, row := range rows {
		lesson, err := mapLesson(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLesson, errorCodeInvalid, err)
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

func (store *Store) CountLessons(ctx context.Context, query booking.LessonQuery) (int64, error) {
	scoped, err := store.lessonScope(ctx, query)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := scoped.Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectLesson, errorCodeCount, classify(err, nil))
	}
	return count, nil
}

func (store *Store) lessonScope(ctx context.Context, query booking.LessonQuery) (*gorm.DB, error) {
	scoped := store.db.WithContext(ctx).Model(&Lesson{})
	switch query.As {
	case booking.RoleStudent:
		scoped = scoped.Where(whereStudentID, query.Participant.String())
	case booking.RoleInstructor:
		scoped = scoped.Where(whereInstructorID, query.Participant.String())
	default:
		return nil, wrapStoreError(errorSubjectLesson, errorCodeList, booking.ErrInvalidRole)
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, status.String())
		}
		scoped = scoped.Where(whereStatusIn, statuses)
	}
	if !query.StartingFrom.IsZero() {
		scoped = scoped.Where(whereStartsAtFrom, toUnixMillis(query.StartingFrom))
	}
	return scoped, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(model Account) (booking.Account, error) {
	accountID, err := booking.NewAccountID(model.AccountID)
	if err != nil {
		return booking.Account{}, err
	}
	role, err := booking.ParseRole(model.Role)
	if err != nil {
		return booking.Account{}, err
	}
	return booking.Account{
		ID:               accountID,
		Role:             role,
		Email:            model.Email,
		LessonsRemaining: model.LessonsRemaining,
		LessonsCompleted: model.LessonsCompleted,
	}, nil
}

func mapLesson(model Lesson) (booking.Lesson, error) {
	lessonID, err := booking.NewLessonID(model.LessonID)
	if err != nil {
		return booking.Lesson{}, err
	}
	studentID, err := booking.NewAccountID(model.StudentID)
	if err != nil {
		return booking.Lesson{}, err
	}
	instructorID, err := booking.NewAccountID(model.InstructorID)
	if err != nil {
		return booking.Lesson{}, err
	}
	status, err := booking.ParseLessonStatus(model.Status)
	if err != nil {
		return booking.Lesson{}, err
	}
	return booking.Lesson{
		ID:                  lessonID,
		Student:             studentID,
		Instructor:          instructorID,
		DateTime:            fromUnixMillis(model.StartsAtUnixMs),
		Status:              status,
		StudentConfirmed:    model.StudentConfirmed,
		InstructorConfirmed: model.InstructorConfirmed,
		Version:             model.Version,
		CreatedAt:           model.CreatedAt.UTC(),
		UpdatedAt:           model.UpdatedAt.UTC(),
	}, nil
}

func toUnixMillis(instant time.Time) int64 {
	return booking.NormalizeInstant(instant).UnixMilli()
}

func fromUnixMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// classify maps driver errors onto domain sentinels; conflict is used for unique violations.
func classify(err error, conflict error) error {
	if err == nil {
		return nil
	}
	if conflict != nil && isUniqueViolation(err) {
		return conflict
	}
	if isBusy(err) {
		return booking.ErrConcurrencyConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
