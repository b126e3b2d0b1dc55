package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the booking and lifecycle logic over a Store.
type Service struct {
	store    Store
	nowFn    func() time.Time
	logger   OperationLogger
	notifier Notifier
	newID    func() string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, newID: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// EnsureAccount records the identity-supplied role and email of the actor.
func (service *Service) EnsureAccount(ctx context.Context, actor Actor) (Account, error) {
	account, err := service.store.UpsertAccount(ctx, actor)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationEnsureAccount, Actor: actor.AccountID, Error: err})
		return Account{}, err
	}
	return account, nil
}

// Account returns the caller's credit ledger.
func (service *Service) Account(ctx context.Context, actor Actor) (Account, error) {
	return service.store.GetAccount(ctx, actor.AccountID)
}

// GrantLessons adds purchased lesson credit to an account. Admin only.
func (service *Service) GrantLessons(ctx context.Context, actor Actor, accountID AccountID, lessons int64) (Account, error) {
	var granted Account
	operationError := func() error {
		if err := RequireRole(actor, RoleAdmin); err != nil {
			return err
		}
		if lessons <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidLessonCount, lessons)
		}
		account, err := service.store.GrantLessons(ctx, accountID, lessons)
		if err != nil {
			return err
		}
		granted = account
		return nil
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationGrantLessons,
		Actor:     actor.AccountID,
		Error:     operationError,
	})
	return granted, operationError
}

// PublishAvailability replaces the instructor's open slots.
// Instants already held by one of the instructor's lessons are left out.
func (service *Service) PublishAvailability(ctx context.Context, actor Actor, slots []Slot) (AvailabilitySet, error) {
	var published AvailabilitySet
	operationError := func() error {
		if err := RequireRole(actor, RoleInstructor); err != nil {
			return err
		}
		normalized, err := normalizeSlots(slots)
		if err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			occupied, err := transactionStore.ListLessons(ctx, LessonQuery{
				Participant: actor.AccountID,
				As:          RoleInstructor,
				Statuses:    LiveLessonStatuses(),
			})
			if err != nil {
				return err
			}
			held := make(map[int64]struct{}, len(occupied))
			for _, lesson := range occupied {
				held[lesson.DateTime.UnixMilli()] = struct{}{}
			}
			open := make([]Slot, 0, len(normalized))
			for _, slot := range normalized {
				if _, taken := held[slot.DateTime.UnixMilli()]; taken {
					continue
				}
				open = append(open, slot)
			}
			set, err := transactionStore.ReplaceAvailability(ctx, actor.AccountID, open)
			if err != nil {
				return err
			}
			published = set
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationPublish,
		Actor:      actor.AccountID,
		Instructor: actor.AccountID,
		Error:      operationError,
	})
	return published, operationError
}

// Availability returns the open slots of an instructor.
func (service *Service) Availability(ctx context.Context, instructorID AccountID) (AvailabilitySet, error) {
	return service.store.GetAvailability(ctx, instructorID)
}

func normalizeSlots(slots []Slot) ([]Slot, error) {
	seen := make(map[int64]struct{}, len(slots))
	normalized := make([]Slot, 0, len(slots))
	for _, candidate := range slots {
		slot, err := NewSlot(candidate.DateTime, candidate.IsRecurring)
		if err != nil {
			return nil, err
		}
		key := slot.DateTime.UnixMilli()
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSlot, slot.DateTime.Format(time.RFC3339Nano))
		}
		seen[key] = struct{}{}
		normalized = append(normalized, slot)
	}
	return normalized, nil
}

func (service *Service) now() time.Time {
	return NormalizeInstant(service.nowFn())
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// notify hands a message to the notifier; failures are logged and swallowed.
func (service *Service) notify(ctx context.Context, lessonID LessonID, notification Notification) {
	if service.notifier == nil || notification.To == "" {
		return
	}
	if err := service.notifier.Send(ctx, notification); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationNotify,
			LessonID:  lessonID,
			Error:     err,
		})
	}
}

// emailOf resolves the address of an account, returning "" for accounts not yet seen.
func emailOf(ctx context.Context, store Store, accountID AccountID) (string, error) {
	account, err := store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return account.Email, nil
}
