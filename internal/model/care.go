package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MedicationSchedule is an active or past medication regimen of an account
type MedicationSchedule struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID    uuid.UUID  `json:"account_id" gorm:"type:uuid;not null;index"`
	Name         string     `json:"name" gorm:"size:150;not null"`
	Dosage       string     `json:"dosage,omitempty" gorm:"size:100"`
	DosesPerDay  int        `json:"doses_per_day" gorm:"not null"`
	IsActive     bool       `json:"is_active"`
	NextIntakeAt *time.Time `json:"next_intake_at,omitempty" gorm:"index"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (MedicationSchedule) TableName() string { return "medication_schedules" }

func (m *MedicationSchedule) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IntakeStatus of a scheduled dose
type IntakeStatus string

const (
	IntakeTaken   IntakeStatus = "taken"
	IntakeMissed  IntakeStatus = "missed"
	IntakeSkipped IntakeStatus = "skipped"
)

// MedicationIntake is one expected dose and whether it was taken
type MedicationIntake struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID    `json:"account_id" gorm:"type:uuid;not null;index:idx_intake_account_time,priority:1"`
	ScheduleID  uuid.UUID    `json:"schedule_id" gorm:"type:uuid;not null;index"`
	ScheduledAt time.Time    `json:"scheduled_at" gorm:"not null;index:idx_intake_account_time,priority:2"`
	TakenAt     *time.Time   `json:"taken_at,omitempty"`
	Status      IntakeStatus `json:"status" gorm:"type:varchar(10);not null"`

	Schedule *MedicationSchedule `json:"schedule,omitempty" gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE"`
}

func (MedicationIntake) TableName() string { return "medication_intakes" }

func (m *MedicationIntake) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MealLog is a meal eaten by an account. Carbs is nil when not logged.
type MealLog struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index:idx_meal_account_time,priority:1"`
	Name      string    `json:"name" gorm:"size:150"`
	EatenAt   time.Time `json:"eaten_at" gorm:"not null;index:idx_meal_account_time,priority:2"`
	Calories  float64   `json:"calories"`
	Carbs     *float64  `json:"carbs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (MealLog) TableName() string { return "meal_logs" }

func (m *MealLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ActivityLog is a bounded period of physical activity
type ActivityLog struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index:idx_activity_account_time,priority:1"`
	Name      string    `json:"name" gorm:"size:150"`
	StartAt   time.Time `json:"start_at" gorm:"not null;index:idx_activity_account_time,priority:2"`
	EndAt     time.Time `json:"end_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Minutes is the duration of the activity, zero when the bounds are inverted
func (a *ActivityLog) Minutes() float64 {
	d := a.EndAt.Sub(a.StartAt)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}
