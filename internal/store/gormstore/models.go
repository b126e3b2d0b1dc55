package gormstore

import "time"

// Account represents the accounts table.
type Account struct {
	AccountID        string    `gorm:"column:account_id;primaryKey"`
	Role             string    `gorm:"column:role;not null"`
	Email            string    `gorm:"column:email;not null;default:''"`
	LessonsRemaining int64     `gorm:"column:lessons_remaining;not null;default:0;check:lessons_remaining >= 0"`
	LessonsCompleted int64     `gorm:"column:lessons_completed;not null;default:0;check:lessons_completed >= 0"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (Account) TableName() string { return "accounts" }

// AvailabilitySet mirrors the availability_sets table; one row per instructor.
type AvailabilitySet struct {
	InstructorID string    `gorm:"column:instructor_id;primaryKey"`
	Version      int64     `gorm:"column:version;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (AvailabilitySet) TableName() string { return "availability_sets" }

// AvailabilitySlot mirrors the availability_slots table keyed by instant.
type AvailabilitySlot struct {
	InstructorID   string `gorm:"column:instructor_id;primaryKey;autoIncrement:false"`
	StartsAtUnixMs int64  `gorm:"column:starts_at_unix_ms;primaryKey;autoIncrement:false"`
	IsRecurring    bool   `gorm:"column:is_recurring;not null;default:false"`
}

func (AvailabilitySlot) TableName() string { return "availability_slots" }

// Lesson mirrors the lessons table.
type Lesson struct {
	LessonID            string    `gorm:"column:lesson_id;primaryKey"`
	StudentID           string    `gorm:"column:student_id;not null;index:idx_lessons_student_starts,priority:1"`
	InstructorID        string    `gorm:"column:instructor_id;not null;uniqueIndex:lessons_instructor_slot_key,priority:1"`
	StartsAtUnixMs      int64     `gorm:"column:starts_at_unix_ms;not null;uniqueIndex:lessons_instructor_slot_key,priority:2;index:idx_lessons_student_starts,priority:2"`
	Status              string    `gorm:"column:status;not null"`
	StudentConfirmed    bool      `gorm:"column:student_confirmed;not null;default:false"`
	InstructorConfirmed bool      `gorm:"column:instructor_confirmed;not null;default:false"`
	Version             int64     `gorm:"column:version;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time `gorm:"column:updated_at;not null"`
}

func (Lesson) TableName() string { return "lessons" }

// Models lists every table managed by the store, in creation order.
func Models() []interface{} {
	return []interface{}{&Account{}, &AvailabilitySet{}, &AvailabilitySlot{}, &Lesson{}}
}
